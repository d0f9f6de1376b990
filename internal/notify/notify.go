// Package notify delivers monitor output to the configured chat.
package notify

import (
	"context"

	"ynabot/internal/format"
	"ynabot/internal/monitor"
	"ynabot/internal/transport"
	logx "ynabot/pkg/logx"
)

// Service renders batches and alerts and sends them through the adapter.
// It implements monitor.Notifier.
type Service struct {
	log     logx.Logger
	adapter transport.Adapter
	fmt     *format.Formatter
	target  transport.ChatTarget
}

func New(adapter transport.Adapter, f *format.Formatter, target transport.ChatTarget, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, adapter: adapter, fmt: f, target: target}
}

func (s *Service) SendBatch(ctx context.Context, b monitor.Batch) error {
	if len(b.Entries) == 0 {
		return nil
	}
	msg := s.fmt.Batch(b)
	_, err := s.adapter.SendText(ctx, s.target, msg.HTML, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		return err
	}
	s.log.Info("batch delivered", logx.Int("entries", len(b.Entries)))
	return nil
}

func (s *Service) SendAlert(ctx context.Context, cause error) error {
	msg := s.fmt.Alert(cause)
	_, err := s.adapter.SendText(ctx, s.target, msg.HTML, &transport.SendOptions{ParseMode: "HTML"})
	return err
}

// SendText delivers an arbitrary pre-rendered message (startup, shutdown,
// command replies).
func (s *Service) SendText(ctx context.Context, msg format.Message) error {
	_, err := s.adapter.SendText(ctx, s.target, msg.HTML, &transport.SendOptions{ParseMode: "HTML"})
	return err
}
