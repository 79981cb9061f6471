package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"
)

// WhatsAppConfig configures the WhatsApp sink.
type WhatsAppConfig struct {
	SessionDB  string   // whatsmeow device store
	QRPath     string   // where the pairing QR code is written
	Recipients []string // JIDs, e.g. 4915112345678@s.whatsapp.net
}

// WhatsAppSink forwards notifications to WhatsApp chats from a linked device.
type WhatsAppSink struct {
	config     WhatsAppConfig
	client     *whatsmeow.Client
	container  *sqlstore.Container
	recipients []types.JID
	sendFn     func(ctx context.Context, to types.JID, text string) error
}

// NewWhatsAppSink validates the recipients. Call Start before sending.
func NewWhatsAppSink(cfg WhatsAppConfig) (*WhatsAppSink, error) {
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("whatsapp: no recipients configured")
	}
	s := &WhatsAppSink{config: cfg}
	for _, r := range cfg.Recipients {
		jid, err := types.ParseJID(r)
		if err != nil {
			return nil, fmt.Errorf("whatsapp: invalid JID %q: %w", r, err)
		}
		s.recipients = append(s.recipients, jid)
	}
	return s, nil
}

func (s *WhatsAppSink) Name() string { return "whatsapp" }

// Start connects the device, pairing it through a QR code on first use.
func (s *WhatsAppSink) Start(ctx context.Context) error {
	dbLog := waLog.Stdout("Database", "WARN", true)
	clientLog := waLog.Stdout("Client", "WARN", true)

	if err := os.MkdirAll(filepath.Dir(s.config.SessionDB), 0755); err != nil {
		return fmt.Errorf("whatsapp: session dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+s.config.SessionDB+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbLog)
	if err != nil {
		return fmt.Errorf("failed to init whatsapp db: %w", err)
	}
	s.container = container

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}
	s.client = whatsmeow.NewClient(deviceStore, clientLog)

	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		slog.Info("WhatsApp connected")
		return nil
	}

	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event == "code" {
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, s.config.QRPath); err != nil {
				slog.Warn("WhatsApp: failed to write QR code", "error", err)
				continue
			}
			slog.Info("WhatsApp: scan the login QR code", "path", s.config.QRPath)
		} else {
			slog.Info("WhatsApp: login event", "event", evt.Event)
		}
	}
	if err := pairingResult(s.client.Store.ID); err != nil {
		s.client.Disconnect()
		return err
	}
	return nil
}

// ErrNotPaired means the QR login ended without a linked device.
var ErrNotPaired = errors.New("whatsapp: device not paired, scan the QR code and restart")

func pairingResult(id *types.JID) error {
	if id == nil {
		return ErrNotPaired
	}
	return nil
}

func (s *WhatsAppSink) Stop() error {
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.container != nil {
		s.container.Close()
	}
	return nil
}

func (s *WhatsAppSink) Send(ctx context.Context, msg Message) error {
	text := msg.Text
	if msg.Identity != "" {
		text = msg.Identity + ": " + text
	}
	var errs []error
	for _, jid := range s.recipients {
		if err := s.sendOne(ctx, jid, text); err != nil {
			errs = append(errs, fmt.Errorf("whatsapp %s: %w", jid, err))
		}
	}
	return errors.Join(errs...)
}

func (s *WhatsAppSink) sendOne(ctx context.Context, to types.JID, text string) error {
	if s.sendFn != nil {
		return s.sendFn(ctx, to, text)
	}
	if s.client == nil {
		return errors.New("client not initialized")
	}
	_, err := s.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	return err
}
