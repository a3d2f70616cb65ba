package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

// TerminalHandler opens an interactive shell on the device over WebSocket.
type TerminalHandler struct {
	cfg    *config.TerminalConfig
	binary string
	args   []string
	logger *zap.Logger
}

// NewTerminalHandler creates a new TerminalHandler instance. binary and args
// start the interactive session, normally ssh with a forced tty.
func NewTerminalHandler(cfg *config.TerminalConfig, binary string, args []string, logger *zap.Logger) *TerminalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalHandler{cfg: cfg, binary: binary, args: args, logger: logger.Named("terminal")}
}

// HandleWebSocket handles WebSocket terminal connections.
// GET /api/terminal/ws
func (h *TerminalHandler) HandleWebSocket(c *gin.Context) {
	if !h.cfg.Enabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "terminal is disabled"})
		return
	}
	actor := services.ActorFromContext(c.Request.Context())

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}
	defer func() { _ = ws.Close() }()

	cmd := exec.Command(h.binary, h.args...) // #nosec G204 - binary and args come from server config
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, h.cfg.Env...)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		h.logger.Error("failed to start pty", zap.Error(err))
		_ = ws.WriteMessage(websocket.TextMessage, []byte("Failed to start terminal\r\n"))
		return
	}
	defer func() { _ = ptmx.Close() }()

	h.logger.Info("terminal opened", zap.String("actor", actor.Name), zap.String("ip", actor.IP))

	done := make(chan struct{})

	// Read from PTY and send to WebSocket
	go func() {
		defer close(done)
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if err != nil {
				if !errors.Is(err, io.EOF) {
					h.logger.Debug("pty read ended", zap.Error(err))
				}
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return
			}
		}
	}()

	// Read from WebSocket and write to PTY
	go func() {
		for {
			msgType, msg, err := ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("websocket read error", zap.Error(err))
				}
				_ = ptmx.Close()
				return
			}
			if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
				if _, err := ptmx.Write(msg); err != nil {
					return
				}
			}
		}
	}()

	<-done
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()
	h.logger.Info("terminal closed", zap.String("actor", actor.Name))
}
