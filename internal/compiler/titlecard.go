package compiler

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// renderTitleCard fills the canvas with a black background and draws the
// player name above the card label, both centered.
func renderTitleCard(canvas *image.RGBA, playerName, cardLabel string) {
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	width := canvas.Bounds().Dx()
	height := canvas.Bounds().Dy()

	drawCenteredText(canvas, face, playerName, width, height/2-face.Height)
	drawCenteredText(canvas, face, cardLabel, width, height/2+face.Height*2)
}

func drawCenteredText(canvas *image.RGBA, face font.Face, text string, width, y int) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.White),
		Face: face,
	}
	textWidth := d.MeasureString(text).Round()
	d.Dot = fixed.P((width-textWidth)/2, y)
	d.DrawString(text)
}
