package devicesim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
)

// Frame geometry and quality of the simulated camera.
const (
	FrameWidth   = 640
	FrameHeight  = 480
	FrameQuality = 60
)

// renderFrame draws frame n of the test pattern: a dish with count larvae and
// a sweep arrow that turns once every 120 frames.
func renderFrame(n, count int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	cx, cy := float64(FrameWidth)/2, float64(FrameHeight)/2
	radius := float64(FrameHeight) * 0.45

	for y := 0; y < FrameHeight; y++ {
		for x := 0; x < FrameWidth; x++ {
			fx, fy := float64(x)-cx, float64(y)-cy
			dist := math.Sqrt(fx*fx + fy*fy)
			switch {
			case dist < radius:
				t := dist / radius
				img.Set(x, y, color.RGBA{R: uint8(190 - t*40), G: uint8(200 - t*40), B: uint8(170 - t*50), A: 255})
			case dist < radius+3:
				img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
			default:
				img.Set(x, y, color.RGBA{R: 20, G: 20, B: 24, A: 255})
			}
		}
	}

	for i := 0; i < count; i++ {
		// larvae drift slowly around fixed seeds
		seed := uint32(i)*2654435761 + 12345
		angle := float64(seed%3600)/3600*2*math.Pi + float64(n)*0.002*float64(i%7-3)
		r := radius * 0.92 * math.Sqrt(float64((seed>>12)%1000)/1000)
		drawDot(img, int(cx+r*math.Cos(angle)), int(cy+r*math.Sin(angle)), 2, color.RGBA{R: 60, G: 40, B: 30, A: 255})
	}

	theta := float64(n%120) / 120 * 2 * math.Pi
	drawArrow(img, int(cx), int(cy), math.Cos(theta), math.Sin(theta), int(radius*0.6))
	return img
}

func drawDot(img *image.RGBA, x, y, r int, c color.RGBA) {
	b := img.Bounds()
	for py := -r; py <= r; py++ {
		for px := -r; px <= r; px++ {
			nx, ny := x+px, y+py
			if px*px+py*py <= r*r && image.Pt(nx, ny).In(b) {
				img.SetRGBA(nx, ny, c)
			}
		}
	}
}

func drawArrow(img *image.RGBA, cx, cy int, dx, dy float64, length int) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for i := 0; i < length; i++ {
		drawDot(img, cx+int(dx*float64(i)), cy+int(dy*float64(i)), 2, white)
	}

	tipX := float64(cx) + dx*float64(length)
	tipY := float64(cy) + dy*float64(length)
	for i := 0; i < 15; i++ {
		for j := -i; j <= i; j++ {
			x := tipX - dx*float64(i) - dy*float64(j)
			y := tipY - dy*float64(i) + dx*float64(j)
			if p := image.Pt(int(x), int(y)); p.In(img.Bounds()) {
				img.SetRGBA(p.X, p.Y, white)
			}
		}
	}
}

// EncodeFrame renders frame n as a base64 JPEG, the payload of one video
// message.
func EncodeFrame(n, count int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, renderFrame(n, count), &jpeg.Options{Quality: FrameQuality}); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
