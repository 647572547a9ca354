package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"persian-connect/internal/metrics"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// WhatsAppConfig holds configuration to initialise the WhatsApp sender.
type WhatsAppConfig struct {
	StorePath string
	LogLevel  string
}

// WhatsApp sends notifications through a linked WhatsApp account.
type WhatsApp struct {
	client  *whatsmeow.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewWhatsApp creates a WhatsApp sender backed by an SQLite device store.
func NewWhatsApp(ctx context.Context, cfg WhatsAppConfig, logger *slog.Logger, m *metrics.Metrics) (*WhatsApp, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}
	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("whatsmeow/client", cfg.LogLevel, true))
	wa := &WhatsApp{
		client:  client,
		logger:  logger.With("component", "whatsapp"),
		metrics: m,
	}
	client.AddEventHandler(wa.handleEvent)
	return wa, nil
}

// Start connects the client. An unpaired device logs QR codes until it is linked.
func (w *WhatsApp) Start(ctx context.Context) error {
	if w.client.Store.ID == nil {
		w.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					w.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					w.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}
	w.logger.Info("whatsapp client connected")
	return nil
}

// Close disconnects the client.
func (w *WhatsApp) Close() {
	if w.client != nil {
		w.client.Disconnect()
	}
}

func (w *WhatsApp) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		w.logger.Info("device connected")
	case *events.Disconnected:
		w.logger.Warn("device disconnected")
	case *events.LoggedOut:
		w.logger.Error("device logged out", "on_connect", v.OnConnect, "reason", v.Reason)
	case *events.Message:
		// Inbound chat happens in the marketplace, not over WhatsApp.
		w.logger.Debug("ignoring inbound message", "from", v.Info.Sender.String())
	}
}

// SendText delivers text to a phone number in international format.
func (w *WhatsApp) SendText(ctx context.Context, phone, text string) error {
	to, err := PhoneJID(phone)
	if err != nil {
		return err
	}
	if !w.client.IsConnected() {
		return errors.New("send text: whatsapp not connected")
	}
	message := &waProto.Message{Conversation: proto.String(text)}
	if _, err := w.client.SendMessage(ctx, to, message); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if w.metrics != nil {
		w.metrics.NotificationsSent.WithLabelValues("whatsapp", "text").Inc()
	}
	return nil
}

// PhoneJID converts "+1 (416) 555-0100" style numbers into a WhatsApp user JID.
func PhoneJID(phone string) (types.JID, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	digits = strings.TrimPrefix(digits, "00")
	if len(digits) < 8 || len(digits) > 15 {
		return types.JID{}, fmt.Errorf("invalid phone number %q", phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
