package main

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/interact"
)

// Styles
var (
	styleDefault    = tcell.StyleDefault
	styleBorder     = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleText       = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleMuted      = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	stylePort       = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleRemove     = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleConnecting = tcell.StyleDefault.Foreground(tcell.NewRGBColor(200, 162, 200)) // Lilac
	styleSelection  = tcell.StyleDefault.Foreground(tcell.ColorAqua).Bold(true)
	styleStatus     = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorNavy)
	styleMsgInfo    = tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(tcell.ColorNavy)
	styleMsgError   = tcell.StyleDefault.Foreground(tcell.ColorRed).Background(tcell.ColorNavy).Bold(true)
	styleMsgSuccess = tcell.StyleDefault.Foreground(tcell.ColorSilver).Background(tcell.ColorNavy)
	styleMsgWarning = tcell.StyleDefault.Foreground(tcell.ColorYellow).Background(tcell.ColorNavy)
	styleHelp       = tcell.StyleDefault.Foreground(tcell.ColorGray) // Help bar on default background
)

// cardColors maps card styles to border colours.
var cardColors = map[board.Style]tcell.Color{
	board.StyleImage:        tcell.ColorTeal,
	board.StyleConcept:      tcell.ColorGreen,
	board.StyleMoodboard:    tcell.ColorPurple,
	board.StyleContext:      tcell.ColorOlive,
	board.StyleOutput:       tcell.ColorFuchsia,
	board.StyleItem:         tcell.ColorBlue,
	board.StylePositive:     tcell.ColorLime,
	board.StyleNegative:     tcell.ColorRed,
	board.StyleConsolidated: tcell.ColorFuchsia,
}

var edgeStyles = map[board.EdgeKind]tcell.Style{
	board.EdgeFeed:   tcell.StyleDefault.Foreground(tcell.ColorTeal),
	board.EdgeItem:   tcell.StyleDefault.Foreground(tcell.ColorBlue),
	board.EdgeOutput: tcell.StyleDefault.Foreground(tcell.ColorFuchsia),
}

// Flash timing in milliseconds.
const (
	flashPhase  = 125
	flashPeriod = 500
)

// flashInverted reports whether a flashing message is drawn inverted
// elapsed milliseconds after it was shown: two inversions, then steady.
func flashInverted(elapsed int64) bool {
	if elapsed < 0 || elapsed >= flashPeriod {
		return false
	}
	phase := elapsed / flashPhase
	return phase == 1 || phase == 3
}

// flashes reports whether messages of t flash.
func flashes(t MessageType) bool {
	switch t {
	case MsgError, MsgSuccess, MsgWarning:
		return true
	}
	return false
}

func (ed *Editor) draw() {
	ed.screen.Clear()
	w, h := ed.screen.Size()

	scene := ed.board.Scene()
	vp := ed.board.Viewport()
	for _, e := range scene.Edges {
		ed.drawEdge(vp.CanvasToScreen(e.Path.From), vp.CanvasToScreen(e.Path.To), edgeStyles[e.Kind])
	}
	for _, e := range scene.Entries {
		ed.drawCard(e)
	}
	if from, to, ok := ed.machine.Provisional(); ok {
		ed.drawEdge(vp.CanvasToScreen(from), vp.CanvasToScreen(to), styleConnecting)
	}
	if sel, ok := ed.machine.Selection(); ok {
		x, y, cw, ch := ed.toCells(vp.RectToScreen(sel))
		ed.drawFrame(x, y, cw, ch, styleSelection)
	}

	ed.drawStatusBar(w, h)
}

// toCells converts a screen-space rectangle to terminal cells.
func (ed *Editor) toCells(r canvas.Rect) (x, y, w, h int) {
	x = int(math.Floor(r.X / ed.cellW))
	y = int(math.Floor(r.Y / ed.cellH))
	x1 := int(math.Floor((r.X + r.W) / ed.cellW))
	y1 := int(math.Floor((r.Y + r.H) / ed.cellH))
	return x, y, max(x1-x+1, 2), max(y1-y+1, 2)
}

// toCell converts a screen-space point to its terminal cell.
func (ed *Editor) toCell(p canvas.Point) (int, int) {
	return int(math.Floor(p.X / ed.cellW)), int(math.Floor(p.Y / ed.cellH))
}

func (ed *Editor) drawCard(e board.Entry) {
	vp := ed.board.Viewport()
	x, y, w, h := ed.toCells(vp.RectToScreen(e.Bounds))

	border := styleBorder
	if c, ok := cardColors[e.Style]; ok {
		border = tcell.StyleDefault.Foreground(c)
	}
	if id, ok := ed.machine.Dragged(); ok && id == e.Ref.ID {
		border = border.Bold(true)
	}
	ed.drawBox(x, y, w, h, border)

	if w > 4 {
		ed.drawString(x+1, y, " "+runewidth.Truncate(e.Title, w-5, "…")+" ", border.Bold(true))
		ed.screen.SetContent(x+w-2, y, '×', nil, styleRemove)
	}

	row := y + 1
	if e.Image != nil && row < y+h-1 {
		ed.drawString(x+1, row, runewidth.Truncate("[image "+e.Image.MimeType+"]", w-2, "…"), styleMuted)
		row++
	}
	for _, line := range e.Lines {
		if row >= y+h-1 {
			break
		}
		ed.drawString(x+1, row, runewidth.Truncate(line, w-2, "…"), styleText)
		row++
	}

	for j, pt := range e.PortPoints() {
		px, py := ed.toCell(vp.CanvasToScreen(pt))
		r := '○'
		if e.Shape.Ports[j].Start {
			r = '●'
		}
		ed.screen.SetContent(px, py, r, nil, stylePort)
	}
}

// drawEdge draws a straight cell line from a to b with an arrowhead.
func (ed *Editor) drawEdge(a, b canvas.Point, style tcell.Style) {
	x0, y0 := ed.toCell(a)
	x1, y1 := ed.toCell(b)

	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		if x0 == x1 && y0 == y1 {
			break
		}
		ed.screen.SetContent(x0, y0, '·', nil, style)
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
	ed.screen.SetContent(x1, y1, arrowHead(b.Sub(a)), nil, style)
}

// arrowHead picks the arrow glyph for direction d in screen space.
func arrowHead(d canvas.Point) rune {
	if math.Abs(d.X) >= math.Abs(d.Y) {
		if d.X < 0 {
			return '◀'
		}
		return '▶'
	}
	if d.Y < 0 {
		return '▲'
	}
	return '▼'
}

func (ed *Editor) drawStatusBar(w, h int) {
	y := h - 1

	// Background
	for x := 0; x < w; x++ {
		ed.screen.SetContent(x, y, ' ', nil, styleStatus)
	}

	// File info
	fileInfo := ed.filename
	if runewidth.StringWidth(fileInfo) > 30 {
		fileInfo = filepath.Base(fileInfo)
	}
	if ed.modified.Load() {
		fileInfo += " *"
	}
	ed.drawString(1, y, fileInfo, styleStatus)

	// Mode
	modeStr := ed.modeString()
	ed.drawString(w/2-runewidth.StringWidth(modeStr)/2, y, modeStr, styleStatus)

	// Message
	if ed.message != "" {
		style := styleMsgInfo
		switch ed.messageType {
		case MsgError:
			style = styleMsgError
		case MsgSuccess:
			style = styleMsgSuccess
		case MsgWarning:
			style = styleMsgWarning
		}
		if flashes(ed.messageType) {
			elapsed := time.Now().UnixMilli() - ed.messageFlashStart.Load()
			if flashInverted(elapsed) {
				style = style.Reverse(true)
			}
		}
		ed.drawString(w-runewidth.StringWidth(ed.message)-2, y, ed.message, style)
	}

	// Help bar
	y = h - 2
	for x := 0; x < w; x++ {
		ed.screen.SetContent(x, y, ' ', nil, styleDefault)
	}
	ed.drawString(1, y, ed.helpString(), styleHelp)
}

func (ed *Editor) modeString() string {
	zoom := fmt.Sprintf("%d%%", int(math.Round(ed.board.Viewport().Zoom*100)))
	mode := ""
	switch {
	case ed.machine.SelectMode():
		mode = "EXPORT"
	case ed.machine.State() != interact.Idle:
		mode = strings.ToUpper(ed.machine.State().String())
	}
	if n := ed.busy.Load(); n > 0 {
		mode += fmt.Sprintf(" [%d working]", n)
	}
	if mode == "" {
		return zoom
	}
	return mode + "  " + zoom
}

func (ed *Editor) helpString() string {
	if ed.machine.SelectMode() {
		return "Drag:Export region  e/Esc:Leave export"
	}
	return "Drag:Move/Pan  ●:Connect  e:Export  +/-/0:Zoom  d:Delete  n/1-6:Concept  c/o:Add  m:Mode  g:Generate  a:Analyze  s:Save  q:Quit"
}

func (ed *Editor) drawBox(x, y, w, h int, style tcell.Style) {
	ed.drawFrame(x, y, w, h, style)

	// Fill
	for row := y + 1; row < y+h-1; row++ {
		for col := x + 1; col < x+w-1; col++ {
			ed.screen.SetContent(col, row, ' ', nil, styleDefault)
		}
	}
}

// drawFrame draws a box outline without clearing its inside.
func (ed *Editor) drawFrame(x, y, w, h int, style tcell.Style) {
	// Corners
	ed.screen.SetContent(x, y, '┌', nil, style)
	ed.screen.SetContent(x+w-1, y, '┐', nil, style)
	ed.screen.SetContent(x, y+h-1, '└', nil, style)
	ed.screen.SetContent(x+w-1, y+h-1, '┘', nil, style)

	// Horizontal borders
	for i := x + 1; i < x+w-1; i++ {
		ed.screen.SetContent(i, y, '─', nil, style)
		ed.screen.SetContent(i, y+h-1, '─', nil, style)
	}

	// Vertical borders
	for i := y + 1; i < y+h-1; i++ {
		ed.screen.SetContent(x, i, '│', nil, style)
		ed.screen.SetContent(x+w-1, i, '│', nil, style)
	}
}

func (ed *Editor) drawString(x, y int, s string, style tcell.Style) {
	for _, r := range s {
		ed.screen.SetContent(x, y, r, nil, style)
		x += runewidth.RuneWidth(r)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
