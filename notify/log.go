// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// LogSink writes messages to the log instead of delivering them. It is used
// for dry runs
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Send(
	ctx context.Context,
	channelId string,
	msg Message,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	args := []any{
		"component", "notify",
		"channel", channelId,
		"kind", msg.Kind,
	}
	if msg.ProposalKey != "" {
		args = append(args, "proposal", msg.ProposalKey)
	}
	for _, field := range msg.Fields {
		args = append(args, "field."+field.Name, field.Value)
	}
	l.logger.Info(
		fmt.Sprintf("notification: %s", msg.Title),
		args...,
	)
	return nil
}

func (l *LogSink) Close() error {
	return nil
}
