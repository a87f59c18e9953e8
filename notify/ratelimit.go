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

	"golang.org/x/time/rate"
)

// RateLimitedSink spaces out sends to stay below the destination's limits
type RateLimitedSink struct {
	sink    Sink
	limiter *rate.Limiter
}

// NewRateLimitedSink wraps sink with a token bucket. A non-positive rate
// returns sink unchanged
func NewRateLimitedSink(sink Sink, perSecond float64, burst int) Sink {
	if perSecond <= 0 {
		return sink
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedSink{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Send waits for a token, then delegates. Running out of context while
// waiting is reported as a rate limit
func (r *RateLimitedSink) Send(
	ctx context.Context,
	channelId string,
	msg Message,
) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return &RateLimitError{Err: err}
	}
	return r.sink.Send(ctx, channelId, msg)
}

func (r *RateLimitedSink) Close() error {
	return r.sink.Close()
}
