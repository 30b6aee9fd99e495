package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ha1tch/moodcanvas/internal/config"
	"github.com/ha1tch/moodcanvas/internal/logging"
	"github.com/ha1tch/moodcanvas/pkg/board"
	"github.com/ha1tch/moodcanvas/pkg/canvas"
	"github.com/ha1tch/moodcanvas/pkg/graph"
	"github.com/ha1tch/moodcanvas/pkg/interact"
	"github.com/ha1tch/moodcanvas/pkg/render"
)

func init() {
	rootCmd.AddCommand(editCmd)
}

var editCmd = &cobra.Command{
	Use:   "edit FILE",
	Short: "Open a board in the terminal editor",
	Long: `Edit a board with the mouse: drag cards by their body, drag from a port
(●) onto another card to connect, drag the background to pan, and use
the wheel with Ctrl to zoom. The file is created on first save.

Keys:
  e        toggle export selection; a dragged rectangle is written as PNG
  + - 0    zoom in, zoom out, reset zoom
  arrows   pan
  d        delete the card under the pointer
  n        add the next missing default concept at the pointer
  1-6      add Color Palette, Style, Texture, Material, Aesthetic or Moodboard
  c o      add a context or output node at the pointer
  m        switch the output node under the pointer between modes
  g        generate prompts for the output node under the pointer
  a        run pending analyses
  s        save
  q        quit (twice with unsaved changes)

Logs go to the configured log file, or editor.log in the config directory.`,
	Args: exactArgs(1),
	RunE: runEdit,
}

// Canvas rows reserved at the bottom of the screen.
const statusRows = 2

// MessageType for status messages
type MessageType int

const (
	MsgInfo    MessageType = iota // Informative, no flash
	MsgError                      // Errors, flash
	MsgSuccess                    // State changes, flash
	MsgWarning                    // Warnings, flash
)

// Editor is the terminal front-end. Everything but the fields marked
// atomic belongs to the event loop goroutine.
type Editor struct {
	screen   tcell.Screen
	board    *board.Board
	machine  *interact.Machine
	log      *zap.Logger
	filename string

	cellW, cellH float64 // canvas screen units per terminal cell
	canAnalyze   bool

	modified atomic.Bool
	busy     atomic.Int32 // analyses and generations in flight

	mouseDown bool
	mouse     canvas.Point // last pointer position, screen space
	quitArmed bool
	exports   int

	message           string
	messageType       MessageType
	messageFlashStart atomic.Int64 // Unix milliseconds

	ctx    context.Context
	cancel context.CancelFunc
}

func runEdit(cmd *cobra.Command, args []string) error {
	logPath := cfg.Log.File
	if logPath == "" {
		if err := os.MkdirAll(config.Dir(), 0o755); err != nil {
			return err
		}
		logPath = filepath.Join(config.Dir(), "editor.log")
	}
	l, err := logging.New(cfg.Log.Level, logging.FormatJSON, logPath)
	if err != nil {
		return usageError("%v", err)
	}
	logger = l.With(zap.String("file", args[0]))

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}

	ed, err := newEditor(screen, args[0], true)
	if err != nil {
		screen.Fini()
		return err
	}
	defer ed.cancel()

	screen.EnableMouse()
	screen.Clear()
	ed.flashLoop()
	ed.run()
	screen.Fini()

	if ed.modified.Load() {
		outputWarn(cmd.OutOrStdout(), "quit with unsaved changes")
	}
	return nil
}

// newEditor opens path on screen. withAnalyzer wires the configured model
// server.
func newEditor(screen tcell.Screen, path string, withAnalyzer bool) (*Editor, error) {
	ed := &Editor{
		screen:   screen,
		log:      logger,
		filename: path,
		cellW:    cfg.Editor.CellWidth,
		cellH:    cfg.Editor.CellHeight,
	}
	ed.ctx, ed.cancel = context.WithCancel(context.Background())

	opts := []board.Option{
		board.OnChange(ed.changed),
		board.OnAreaSelected(ed.exportArea),
	}
	var (
		b   *board.Board
		err error
	)
	if withAnalyzer {
		b, err = openAnalyzing(path, true, opts...)
	} else {
		b, err = openBoard(path, true, opts...)
	}
	if err != nil {
		ed.cancel()
		return nil, err
	}
	ed.board = b
	ed.canAnalyze = withAnalyzer
	ed.modified.Store(false)

	sched := &interact.TimerScheduler{Post: ed.post}
	ed.machine = interact.NewMachine(b.Viewport(), b, sched, cfg.MachineOptions())
	ed.resize()
	ed.log.Info("editor opened")
	return ed, nil
}

// changed is the board's change hook; it may run on any goroutine.
func (ed *Editor) changed() {
	ed.modified.Store(true)
	ed.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

// post runs fn on the event loop.
func (ed *Editor) post(fn func()) {
	if err := ed.screen.PostEvent(tcell.NewEventInterrupt(fn)); err != nil {
		ed.log.Debug("event queue full; frame dropped")
	}
}

// flashLoop sends periodic refresh events while a message is flashing.
func (ed *Editor) flashLoop() {
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond) // 20fps for smooth flash
		defer ticker.Stop()
		for {
			select {
			case <-ed.ctx.Done():
				return
			case <-ticker.C:
			}
			start := ed.messageFlashStart.Load()
			if start == 0 {
				continue
			}
			if elapsed := time.Now().UnixMilli() - start; elapsed >= 0 && elapsed < 700 {
				ed.screen.PostEvent(tcell.NewEventInterrupt(nil))
			}
		}
	}()
}

func (ed *Editor) run() {
	for {
		ed.draw()
		ed.screen.Show()

		switch ev := ed.screen.PollEvent().(type) {
		case nil:
			return
		case *tcell.EventResize:
			ed.screen.Sync()
			ed.resize()
		case *tcell.EventKey:
			if ed.handleKey(ev) {
				return
			}
		case *tcell.EventMouse:
			ed.handleMouse(ev)
		case *tcell.EventInterrupt:
			if fn, ok := ev.Data().(func()); ok && fn != nil {
				fn()
			}
		}
	}
}

// resize fits the viewport to the canvas area of the screen.
func (ed *Editor) resize() {
	w, h := ed.screen.Size()
	rows := h - statusRows
	if rows < 1 {
		rows = 1
	}
	ed.board.Viewport().Resize(canvas.Point{}, float64(w)*ed.cellW, float64(rows)*ed.cellH)
}

// cellRect is the screen-space area of terminal cell (cx, cy).
func (ed *Editor) cellRect(cx, cy int) canvas.Rect {
	return canvas.Rect{X: float64(cx) * ed.cellW, Y: float64(cy) * ed.cellH, W: ed.cellW, H: ed.cellH}
}

// pointerAt maps a terminal cell to a screen point. A cell holding a
// port maps to the port centre, since ports are smaller than a cell.
func (ed *Editor) pointerAt(cx, cy int) canvas.Point {
	cell := ed.cellRect(cx, cy)
	vp := ed.board.Viewport()
	entries := ed.board.Scene().Entries
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		for j, pt := range e.PortPoints() {
			if !e.Shape.Ports[j].Start {
				continue
			}
			if sp := vp.CanvasToScreen(pt); cell.Contains(sp) {
				return sp
			}
		}
	}
	return cell.Center()
}

func (ed *Editor) handleMouse(ev *tcell.EventMouse) {
	cx, cy := ev.Position()
	p := ed.pointerAt(cx, cy)
	buttons := ev.Buttons()
	ed.mouse = p

	switch {
	case buttons&tcell.WheelUp != 0:
		ed.wheel(-1, ev.Modifiers())
	case buttons&tcell.WheelDown != 0:
		ed.wheel(1, ev.Modifiers())
	case buttons&tcell.Button1 != 0:
		if ed.mouseDown {
			ed.machine.PointerMove(p)
			return
		}
		ed.mouseDown = true
		ed.pointerDown(p)
	default:
		if ed.mouseDown {
			ed.mouseDown = false
			ed.pointerUp(p)
		}
	}
}

func (ed *Editor) wheel(dir float64, mod tcell.ModMask) {
	if mod&tcell.ModCtrl != 0 {
		if dir < 0 {
			ed.machine.ZoomIn()
		} else {
			ed.machine.ZoomOut()
		}
		return
	}
	ed.machine.Wheel(0, dir*3*ed.cellH, false)
}

func (ed *Editor) pointerDown(p canvas.Point) {
	if !ed.machine.SelectMode() {
		hit := ed.board.HitTest(p)
		if hit.Kind == interact.HitControl && ed.onRemoveButton(hit.Ref.ID, p) {
			ed.remove(hit.Ref.ID)
			return
		}
	}
	ed.machine.PointerDown(p)
}

// onRemoveButton reports whether p lies on the remove button of id.
func (ed *Editor) onRemoveButton(id string, p canvas.Point) bool {
	e, ok := ed.board.Layout().Entry(id)
	if !ok {
		return false
	}
	return e.ControlRect().Contains(ed.board.Viewport().ScreenToCanvas(p))
}

func (ed *Editor) pointerUp(p canvas.Point) {
	connecting := ed.machine.State() == interact.Connecting
	ed.machine.PointerUp(p)
	if connecting && ed.canAnalyze && ed.board.PendingCount() > 0 {
		ed.startAnalysis()
	}
}

func (ed *Editor) handleKey(ev *tcell.EventKey) bool {
	quitKey := ev.Key() == tcell.KeyCtrlC || (ev.Key() == tcell.KeyRune && ev.Rune() == 'q')
	if !quitKey {
		ed.quitArmed = false
	}

	switch ev.Key() {
	case tcell.KeyCtrlC:
		return ed.quit()
	case tcell.KeyCtrlS:
		ed.save()
		return false
	case tcell.KeyEscape:
		ed.machine.Cancel()
		ed.machine.SetSelectMode(false)
		return false
	case tcell.KeyDelete, tcell.KeyBackspace, tcell.KeyBackspace2:
		ed.deleteUnderPointer()
		return false
	case tcell.KeyLeft:
		ed.board.Viewport().PanBy(canvas.Point{X: 4 * ed.cellW})
		return false
	case tcell.KeyRight:
		ed.board.Viewport().PanBy(canvas.Point{X: -4 * ed.cellW})
		return false
	case tcell.KeyUp:
		ed.board.Viewport().PanBy(canvas.Point{Y: 2 * ed.cellH})
		return false
	case tcell.KeyDown:
		ed.board.Viewport().PanBy(canvas.Point{Y: -2 * ed.cellH})
		return false
	case tcell.KeyRune:
	default:
		return false
	}

	switch ev.Rune() {
	case 'q':
		return ed.quit()
	case 's':
		ed.save()
	case 'e':
		on := !ed.machine.SelectMode()
		ed.machine.SetSelectMode(on)
		if on {
			ed.showMessage("Drag a rectangle to export it as PNG", MsgInfo)
		} else {
			ed.showMessage("Export selection off", MsgInfo)
		}
	case '+', '=':
		ed.machine.ZoomIn()
	case '-':
		ed.machine.ZoomOut()
	case '0':
		ed.machine.ResetZoom()
	case 'd':
		ed.deleteUnderPointer()
	case 'n':
		ed.addNode(kindConcept)
	case '1', '2', '3', '4', '5', '6':
		ed.addNamedNode(graph.DefaultConceptNames[ev.Rune()-'1'])
	case 'c':
		ed.addNode(kindContext)
	case 'o':
		ed.addNode(kindOutput)
	case 'm':
		ed.toggleMode()
	case 'g':
		ed.generate()
	case 'a':
		ed.startAnalysis()
	}
	return false
}

func (ed *Editor) quit() bool {
	if ed.modified.Load() && !ed.quitArmed {
		ed.quitArmed = true
		ed.showMessage("Unsaved changes: s saves, q again quits", MsgWarning)
		return false
	}
	return true
}

func (ed *Editor) save() {
	if err := ed.board.Save(ed.filename); err != nil {
		ed.log.Error("save failed", zap.Error(err))
		ed.showMessage("Save failed: "+err.Error(), MsgError)
		return
	}
	ed.modified.Store(false)
	ed.showMessage("Saved "+filepath.Base(ed.filename), MsgSuccess)
}

// underPointer returns the entity under the pointer.
func (ed *Editor) underPointer() (graph.EntityRef, bool) {
	hit := ed.board.HitTest(ed.mouse)
	return hit.Ref, hit.OnEntity()
}

func (ed *Editor) deleteUnderPointer() {
	ref, ok := ed.underPointer()
	if !ok {
		ed.showMessage("Nothing under the pointer", MsgInfo)
		return
	}
	ed.remove(ref.ID)
}

func (ed *Editor) remove(id string) {
	if err := ed.board.Remove(id); err != nil {
		ed.showMessage(err.Error(), MsgError)
		return
	}
	ed.showMessage("Removed", MsgSuccess)
}

func (ed *Editor) addNode(kind string) {
	switch kind {
	case kindOutput:
		n := ed.board.AddOutputNode(ed.board.Viewport().ScreenToCanvas(ed.mouse))
		ed.showMessage("Added "+n.Name, MsgSuccess)
	case kindContext:
		ed.addNamedNode(graph.ContextName)
	case kindConcept:
		name, ok := ed.nextConcept()
		if !ok {
			ed.showMessage("Every default concept is on the board", MsgInfo)
			return
		}
		ed.addNamedNode(name)
	}
}

// addNamedNode places a concept or context node at the pointer.
func (ed *Editor) addNamedNode(name string) {
	n, err := ed.board.AddNode(name, ed.board.Viewport().ScreenToCanvas(ed.mouse))
	if err != nil {
		ed.showMessage(err.Error(), MsgError)
		return
	}
	ed.showMessage("Added "+n.Name, MsgSuccess)
}

// nextConcept returns the first default concept name not yet taken.
func (ed *Editor) nextConcept() (name string, ok bool) {
	ed.board.View(func(g *graph.Graph) {
		for _, c := range graph.DefaultConceptNames {
			if _, err := g.ValidateNodeName(c); err == nil {
				name, ok = c, true
				return
			}
		}
	})
	return name, ok
}

// outputUnderPointer returns the output node under the pointer.
func (ed *Editor) outputUnderPointer() (*graph.Node, bool) {
	ref, ok := ed.underPointer()
	if !ok || ref.Kind != graph.EntityNode {
		return nil, false
	}
	var node *graph.Node
	ed.board.View(func(g *graph.Graph) {
		if n, ok := g.Node(ref.ID); ok && n.IsOutput() {
			cp := *n
			if n.Output != nil {
				out := *n.Output
				cp.Output = &out
			}
			node = &cp
		}
	})
	return node, node != nil
}

func (ed *Editor) toggleMode() {
	n, ok := ed.outputUnderPointer()
	if !ok {
		ed.showMessage("Point at an output node first", MsgInfo)
		return
	}
	mode := graph.ModeDoubleOutput
	if n.Output != nil && n.Output.Mode == graph.ModeDoubleOutput {
		mode = graph.ModeConsolidated
	}
	if err := ed.board.SetOutputMode(n.ID, mode); err != nil {
		ed.showMessage(err.Error(), MsgError)
		return
	}
	ed.showMessage(fmt.Sprintf("%s: %s", n.Name, mode), MsgSuccess)
}

func (ed *Editor) generate() {
	n, ok := ed.outputUnderPointer()
	if !ok {
		ed.showMessage("Point at an output node first", MsgInfo)
		return
	}
	if !ed.canAnalyze {
		ed.showMessage("No model server configured", MsgWarning)
		return
	}
	if !ed.board.CanGenerate(n.ID) {
		ed.showMessage("Connect sources to "+n.Name+" first", MsgWarning)
		return
	}
	ed.background("Generation", func(ctx context.Context) error {
		_, err := ed.board.Generate(ctx, n.ID)
		return err
	})
}

func (ed *Editor) startAnalysis() {
	if !ed.canAnalyze {
		ed.showMessage("No model server configured", MsgWarning)
		return
	}
	if ed.board.PendingCount() == 0 {
		ed.showMessage("Nothing to analyze", MsgInfo)
		return
	}
	ed.background("Analysis", ed.board.AnalyzePending)
}

// background runs fn off the event loop and reports its outcome.
func (ed *Editor) background(what string, fn func(ctx context.Context) error) {
	ed.busy.Add(1)
	ed.showMessage(what+" running...", MsgInfo)
	go func() {
		err := fn(ed.ctx)
		ed.busy.Add(-1)
		ed.post(func() {
			switch {
			case errors.Is(err, context.Canceled):
			case err != nil:
				ed.showMessage(what+" failed: "+firstLine(err.Error()), MsgError)
			default:
				ed.showMessage(what+" finished", MsgSuccess)
			}
		})
	}()
}

// exportArea writes the selected region as a PNG next to the board file.
func (ed *Editor) exportArea(r canvas.Rect) {
	ed.exports++
	base := strings.TrimSuffix(ed.filename, filepath.Ext(ed.filename))
	path := fmt.Sprintf("%s-export-%d.png", base, ed.exports)

	if _, err := exportScene(ed.board.Scene(), &r, path, render.DefaultOptions()); err != nil {
		ed.log.Error("export failed", zap.String("path", path), zap.Error(err))
		ed.showMessage("Export failed: "+err.Error(), MsgError)
		return
	}
	ed.log.Info("region exported", zap.String("path", path))
	ed.showMessage("Exported "+filepath.Base(path), MsgSuccess)
}

func (ed *Editor) showMessage(msg string, msgType MessageType) {
	ed.message = msg
	ed.messageType = msgType
	ed.messageFlashStart.Store(time.Now().UnixMilli())
	// Trigger immediate refresh for flash animation
	ed.screen.PostEvent(tcell.NewEventInterrupt(nil))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
