package viewer

const jsClient = `
let ws = null;
let frameSeq = 0;

const statusEl = document.getElementById('status');
const statusText = document.getElementById('statusText');
const video = document.getElementById('video');
const startBtn = document.getElementById('startBtn');
const stopBtn = document.getElementById('stopBtn');
const statsEl = document.getElementById('stats');
const notificationEl = document.getElementById('notification');
const actionEl = document.getElementById('action');

function render(view) {
  statusEl.className = 'panel ' + view.status;
  statusText.textContent = view.status_error ? view.status + ': ' + view.status_error : view.status;
  document.getElementById('chVideo').textContent = view.channels.video;
  document.getElementById('chStats').textContent = view.channels.stats;
  document.getElementById('chNotification').textContent = view.channels.notification;

  startBtn.disabled = !view.controls.video_start;
  stopBtn.disabled = !view.controls.video_stop;

  if (view.frame) {
    if (view.frame.seq !== frameSeq) {
      frameSeq = view.frame.seq;
      video.src = '/api/frame?seq=' + frameSeq;
    }
  } else if (frameSeq !== 0) {
    frameSeq = 0;
    video.removeAttribute('src');
  }

  if (view.stats) {
    document.getElementById('larvaeCount').textContent = view.stats.larvae_count;
    document.getElementById('densityCm2').textContent = view.stats.density_cm2.toFixed(2);
    document.getElementById('densityM2').textContent = view.stats.density_m2.toFixed(2);
  }
  statsEl.className = view.alert ? 'panel alert' : 'panel';
  document.getElementById('alertText').textContent = view.alert ? 'High larvae density' : '';

  notificationEl.textContent = view.notification
    ? view.notification.title + ': ' + view.notification.message
    : '';

  actionEl.textContent = view.action ? view.action.message : '';
  actionEl.className = view.action && view.action.failed ? 'panel failed' : 'panel';
}

function connectState() {
  const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
  ws = new WebSocket(protocol + '//' + window.location.host + '/ws/state');

  ws.onmessage = (event) => {
    try {
      render(JSON.parse(event.data));
    } catch (err) {
      console.error('bad state message:', err);
    }
  };

  ws.onclose = () => {
    console.log('state socket closed, retrying');
    ws = null;
    setTimeout(connectState, 1000);
  };
}

async function call(method, path) {
  const resp = await fetch(path, { method: method });
  if (!resp.ok) {
    console.error(method + ' ' + path + ': ' + resp.status);
  }
  return resp;
}

startBtn.onclick = () => call('POST', '/api/video/start');
stopBtn.onclick = () => call('POST', '/api/video/stop');

document.getElementById('deleteImagesBtn').onclick = () => {
  if (confirm('Delete all saved images?')) {
    call('DELETE', '/api/images/delete-all');
  }
};

document.getElementById('deleteNotificationsBtn').onclick = () => {
  if (confirm('Delete all notifications?')) {
    call('DELETE', '/api/notifications/delete-all');
  }
};

fetch('/api/state').then(r => r.json()).then(render).catch(() => {});
connectState();
`
