package viewer

const htmlPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Larvawatch</title>
  <style>
    body { font-family: Arial; margin: 20px; background: #1e1e1e; color: #fff; }
    h1 { color: #3cb371; }
    #video { border: 2px solid #3cb371; width: 100%; max-width: 640px; min-height: 120px; margin: 20px 0; background: #111; display: block; }
    button {
      padding: 10px 20px;
      font-size: 16px;
      cursor: pointer;
      background: #3cb371;
      color: white;
      border: none;
      border-radius: 4px;
      margin: 5px;
    }
    button:hover { background: #2e8b57; }
    button:disabled { background: #666; cursor: not-allowed; }
    button.danger { background: #b22222; }
    .panel {
      padding: 10px;
      margin: 20px 0;
      border-radius: 4px;
      background: #2a2a2a;
      max-width: 640px;
    }
    #status.ready { border-left: 4px solid #00ff00; }
    #status.unreachable { border-left: 4px solid #ff0000; }
    #status.resolving, #status.pending { border-left: 4px solid #ffa500; }
    #stats.alert { background: #5a1010; border-left: 4px solid #ff0000; }
    .muted { font-size: 12px; color: #aaa; margin-top: 10px; }
    #notification:empty, #action:empty { display: none; }
    #action.failed { color: #ff6666; }
  </style>
</head>
<body>
  <h1>Larvawatch</h1>

  <div id="status" class="panel pending">
    Device: <span id="statusText">waiting</span>
    <div class="muted">
      Video: <span id="chVideo">idle</span> |
      Stats: <span id="chStats">idle</span> |
      Notifications: <span id="chNotification">idle</span>
    </div>
  </div>

  <img id="video" alt="">

  <div>
    <button id="startBtn" disabled>Start video</button>
    <button id="stopBtn" disabled>Stop video</button>
    <button id="deleteImagesBtn" class="danger">Delete all images</button>
    <button id="deleteNotificationsBtn" class="danger">Delete all notifications</button>
  </div>

  <div id="stats" class="panel">
    Larvae: <span id="larvaeCount">-</span> |
    Density: <span id="densityCm2">-</span> /cm² |
    <span id="densityM2">-</span> /m²
    <div class="muted" id="alertText"></div>
  </div>

  <div id="notification" class="panel"></div>
  <div id="action" class="panel"></div>

  <script src="/client.js"></script>
</body>
</html>`
