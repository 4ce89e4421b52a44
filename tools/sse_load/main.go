// Command sse_load opens many subscribers on the infbuy event stream and,
// optionally, drives events by posting buys to a scratch position.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	events      atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func (c *counters) event(typ string) {
	c.events.Add(1)
	c.mu.Lock()
	c.byType[typ]++
	c.mu.Unlock()
}

func (c *counters) snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.byType))
	for k, v := range c.byType {
		out[k] = v
	}
	return out
}

func main() {
	var (
		baseURL      string
		connections  int
		testDuration time.Duration
		rampUp       time.Duration
		driveEvery   time.Duration
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8080", "infbuy base URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscribers")
	flag.DurationVar(&testDuration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscriber starts across this window")
	flag.DurationVar(&driveEvery, "drive", 0, "post a buy to a scratch position at this interval (0 disables)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if connections <= 0 {
		logger.Fatal("invalid conns", zap.Int("conns", connections))
	}
	if rampUp == 0 && connections > 100 {
		rampUp = time.Duration(connections/500+1) * time.Second
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 10,
			MaxIdleConnsPerHost: connections + 10,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if testDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, testDuration)
		defer cancel()
	}

	c := &counters{byType: make(map[string]int64)}
	streamURL := strings.TrimRight(baseURL, "/") + "/api/v1/events/stream"
	logger.Info("starting SSE load",
		zap.String("url", streamURL),
		zap.Int("conns", connections),
		zap.Duration("dur", testDuration),
		zap.Duration("ramp", rampUp))

	start := time.Now()
	var wg sync.WaitGroup
	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	g, gctx := errgroup.WithContext(ctx)
	if driveEvery > 0 {
		g.Go(func() error {
			return drive(gctx, logger, client, baseURL, driveEvery)
		})
	}
	g.Go(func() error {
		report(gctx, logger, c, start)
		return nil
	})

	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, streamURL, c)
		}()
	}

	wg.Wait()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("driver failed", zap.Error(err))
	}

	elapsed := time.Since(start)
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s events/s=%.2f by_type=%v\n",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.events.Load(),
		elapsed.Truncate(time.Millisecond), float64(c.events.Load())/elapsed.Seconds(), c.snapshot())
}

func subscribe(ctx context.Context, client *http.Client, url string, c *counters) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		c.connectErrs.Add(1)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.connectErrs.Add(1)
		return
	}
	c.connected.Add(1)

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if ctx.Err() == nil {
				c.streamErrs.Add(1)
			}
			return
		}
		// heartbeats are comments and data lines follow their event line
		if typ, ok := strings.CutPrefix(line, "event: "); ok {
			c.event(strings.TrimSpace(typ))
		}
	}
}

func report(ctx context.Context, l *zap.Logger, c *counters, start time.Time) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Info("status",
				zap.Int64("connected", c.connected.Load()),
				zap.Int64("connect_errs", c.connectErrs.Load()),
				zap.Int64("stream_errs", c.streamErrs.Load()),
				zap.Int64("events", c.events.Load()),
				zap.Duration("elapsed", time.Since(start).Truncate(time.Second)))
		}
	}
}

// drive creates a scratch position, buys one share per tick and deletes it at the end.
func drive(ctx context.Context, l *zap.Logger, client *http.Client, baseURL string, every time.Duration) error {
	api := strings.TrimRight(baseURL, "/") + "/api/v1/positions"

	var p struct {
		ID string `json:"id"`
	}
	if err := postJSON(ctx, client, api, map[string]string{"name": "LOADTEST", "capital": "1000000"}, &p); err != nil {
		return errors.Wrap(err, "create scratch position")
	}
	l.Info("driving events", zap.String("position_id", p.ID), zap.Duration("every", every))

	defer func() {
		req, err := http.NewRequest(http.MethodDelete, api+"/"+p.ID, nil)
		if err != nil {
			return
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
		}
	}()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			buy := map[string]string{
				"type":     "buy",
				"quantity": "1",
				"price":    "10",
				"date":     time.Now().UTC().Format("2006-01-02"),
			}
			if err := postJSON(ctx, client, api+"/"+p.ID+"/transactions", buy, nil); err != nil {
				l.Warn("buy failed", zap.Error(err))
			}
		}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return errors.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
