package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"plcmotion/pkg/config"
	"plcmotion/pkg/log"
	"plcmotion/pkg/monitor"
)

var (
	watchURL   string
	watchToken string
	watchAxes  []int
	watchOnce  bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live status stream of a running kernel",
	Long: `Connects to the websocket status stream and prints axis updates and events.
The connection is re-established with exponential backoff when it drops.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		target := watchURL
		if target == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			target = streamURL(cfg.API.Addr)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w := &watcher{
			url:   target,
			token: watchToken,
			axes:  watchAxes,
			out:   cmd.OutOrStdout(),
			log:   log.GetLogger("watch"),
		}
		if watchOnce {
			return w.session(ctx, func() {})
		}
		return w.run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "stream URL (default: derived from api.addr)")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "API token")
	watchCmd.Flags().IntSliceVar(&watchAxes, "axes", nil, "axis ids to follow (default: all)")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "exit when the connection drops")
}

// streamURL turns a listen address into the websocket URL of the stream.
func streamURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return (&url.URL{Scheme: "ws", Host: addr, Path: "/ws"}).String()
}

type watcher struct {
	url   string
	token string
	axes  []int
	out   io.Writer
	log   *log.Logger
}

// run keeps a session open until ctx is done.
func (w *watcher) run(ctx context.Context) error {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2.,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	b.Reset()

	op := func() error {
		err := w.session(ctx, b.Reset)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("stream closed")
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		w.log.Warn("%v, reconnecting in %v", err, next.Round(time.Millisecond))
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type streamMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	ID any `json:"id"`
}

// session connects once and prints messages until the connection drops or
// ctx is done. connected is called after the subscription is sent.
func (w *watcher) session(ctx context.Context, connected func()) error {
	target, err := url.Parse(w.url)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("bad stream url: %w", err))
	}
	header := http.Header{}
	if w.token != "" {
		header.Set("Authorization", "Bearer "+w.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return backoff.Permanent(fmt.Errorf("stream rejected: %s", resp.Status))
		}
		return fmt.Errorf("connect %s: %w", w.url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	params := map[string]any{}
	if len(w.axes) > 0 {
		params["axes"] = w.axes
	}
	if err := conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "motion.subscribe",
		"params":  params,
		"id":      1,
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	w.log.Info("connected to %s", w.url)
	connected()

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := w.print(msg); err != nil {
			return err
		}
	}
}

func (w *watcher) print(msg streamMessage) error {
	switch msg.Method {
	case "notify_status_update":
		var snap monitor.Snapshot
		if err := json.Unmarshal(msg.Params, &snap); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		for _, a := range snap.Axes {
			fmt.Fprintf(w.out, "%8d axis %d %-18s pos %12.4f vel %10.4f lag %9.2g queue %d %s\n",
				snap.Tick, a.ID, a.Status, a.Position, a.CmdVelocity, a.CmdPosition-a.ActPosition, a.Queue, a.Error)
		}
	case "notify_axis_event":
		var ev monitor.AxisEvent
		if err := json.Unmarshal(msg.Params, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		fmt.Fprintf(w.out, "event axis %d %s %s\n", ev.Axis, ev.Event, eventDetail(ev))
	case "notify_safety_state":
		var st map[string]string
		if err := json.Unmarshal(msg.Params, &st); err != nil {
			return fmt.Errorf("decode safety: %w", err)
		}
		fmt.Fprintf(w.out, "safety %s -> %s\n", st["old"], st["new"])
	case "":
		if msg.Error != nil {
			return backoff.Permanent(fmt.Errorf("stream error %d: %s", msg.Error.Code, msg.Error.Message))
		}
	default:
		fmt.Fprintf(w.out, "%s %s\n", msg.Method, msg.Params)
	}
	return nil
}

func eventDetail(ev monitor.AxisEvent) string {
	switch ev.Event {
	case "emergency_stop":
		return ev.Code
	case "power":
		if ev.Powered {
			return "on"
		}
		return "off"
	case "homed":
		return fmt.Sprintf("at %g", ev.Home)
	}
	return ""
}
