package dbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dooshek/candleblow/internal/blow"
	"github.com/dooshek/candleblow/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	dbusServiceName = "com.dooshek.candleblow"
	dbusObjectPath  = "/com/dooshek/candleblow/Detector"
	dbusInterface   = "com.dooshek.candleblow.Detector"

	// Minimum spacing between Intensity signals
	intensityInterval = 25 * time.Millisecond
)

// Detector is the part of blow.Detector the bus exposes.
type Detector interface {
	Start(ctx context.Context) error
	Stop()
	State() blow.DetectionResult
}

// Candles reports how many candles are still lit.
type Candles interface {
	Remaining() int
}

// Server implements the D-Bus service for candleblow
type Server struct {
	conn     *dbus.Conn
	detector Detector
	candles  Candles
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex

	emit          func(name string, args ...interface{})
	now           func() time.Time
	lastIntensity time.Time
}

// NewServer creates a D-Bus server controlling det.
func NewServer(det Detector, candles Candles) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		detector: det,
		candles:  candles,
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
	}
	s.emit = s.emitSignal
	return s
}

// Start connects to the session bus and exports the detector object
func (s *Server) Start() error {
	var err error
	s.conn, err = dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := s.conn.RequestName(dbusServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		s.conn.Close()
		return fmt.Errorf("name already taken")
	}

	err = s.conn.ExportMethodTable(map[string]interface{}{
		"Start":    s.StartDetection,
		"Stop":     s.StopDetection,
		"GetState": s.GetState,
	}, dbusObjectPath, dbusInterface)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export object: %w", err)
	}

	err = s.conn.Export(introspect.NewIntrospectable(introspectNode()), dbusObjectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	logger.Infof("🔌 D-Bus service started: %s", dbusServiceName)
	return nil
}

func introspectNode() *introspect.Node {
	return &introspect.Node{
		Name: dbusObjectPath,
		Interfaces: []introspect.Interface{{
			Name: dbusInterface,
			Methods: []introspect.Method{
				{Name: "Start"},
				{Name: "Stop"},
				{
					Name: "GetState",
					Args: []introspect.Arg{
						{Name: "is_detecting", Type: "b", Direction: "out"},
						{Name: "intensity", Type: "d", Direction: "out"},
						{Name: "candles_remaining", Type: "i", Direction: "out"},
					},
				},
			},
			Signals: []introspect.Signal{
				{Name: "BlowDetected", Args: []introspect.Arg{{Name: "remaining", Type: "i"}}},
				{Name: "Intensity", Args: []introspect.Arg{{Name: "intensity", Type: "d"}}},
				{Name: "DetectionError", Args: []introspect.Arg{{Name: "error", Type: "s"}}},
				{Name: "AllCandlesBlown"},
			},
		}},
	}
}

// Stop stops the D-Bus server
func (s *Server) Stop() {
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	logger.Infof("🔌 D-Bus service stopped")
}

// Wait waits for the server context to be cancelled
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// StartDetection begins listening (D-Bus method Start)
func (s *Server) StartDetection() *dbus.Error {
	logger.Debugf("D-Bus: Start called")
	if err := s.detector.Start(s.ctx); err != nil {
		if !errors.Is(err, blow.ErrStopped) {
			s.emit("DetectionError", err.Error())
		}
		return dbus.MakeFailedError(err)
	}
	return nil
}

// StopDetection stops listening (D-Bus method Stop)
func (s *Server) StopDetection() *dbus.Error {
	logger.Debugf("D-Bus: Stop called")
	s.detector.Stop()
	return nil
}

// GetState returns the detection view and candle count (D-Bus method)
func (s *Server) GetState() (bool, float64, int32, *dbus.Error) {
	r := s.detector.State()
	return r.IsDetecting, r.Intensity, int32(s.candles.Remaining()), nil
}

// BlowDetected announces a candle going out.
func (s *Server) BlowDetected(remaining int) {
	s.emit("BlowDetected", int32(remaining))
}

// Frame forwards the live intensity, at most once per intensityInterval.
func (s *Server) Frame(r blow.DetectionResult) {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastIntensity) < intensityInterval {
		s.mu.Unlock()
		return
	}
	s.lastIntensity = now
	s.mu.Unlock()

	s.emit("Intensity", r.Intensity)
}

func (s *Server) DetectionError(err error) {
	s.emit("DetectionError", err.Error())
}

func (s *Server) AllCandlesBlown() {
	s.emit("AllCandlesBlown")
}

// emitSignal emits a D-Bus signal
func (s *Server) emitSignal(name string, args ...interface{}) {
	if s.conn == nil {
		logger.Warnf("D-Bus: Cannot emit signal %s - no connection", name)
		return
	}

	signalPath := dbus.ObjectPath(dbusObjectPath)
	signalName := dbusInterface + "." + name

	if err := s.conn.Emit(signalPath, signalName, args...); err != nil {
		logger.Errorf("D-Bus: Failed to emit signal %s", err, name)
		return
	}
	if name != "Intensity" {
		logger.Debugf("D-Bus: Emitted signal: %s", name)
	}
}
