package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/verity/analysis"
	"github.com/richinex/verity/events"
)

// TestHelperProcess is not a real test. It is the child analyzer started by
// the tests below.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	raw, _ := io.ReadAll(os.Stdin)
	var req analysis.Request
	_ = json.Unmarshal(raw, &req)

	fw := events.NewFrameWriter(os.Stdout)
	switch os.Getenv("HELPER_MODE") {
	case "ok":
		_ = fw.Emit(events.KindThinkingStart, map[string]any{"timestamp": "t"})
		_ = fw.Emit(events.KindThinkingDelta, map[string]any{"delta": "hmm"})
		fmt.Println("some log line")
		res := map[string]any{"success": true, "text": req.Text}
		_ = fw.Emit(events.KindComplete, res)
		out, _ := json.Marshal(res)
		fmt.Println(string(out))
	case "failed-result":
		fmt.Println(`{"success":false,"error":"no content provided"}`)
	case "crash":
		fmt.Fprintln(os.Stderr, "boom: provider unreachable")
		os.Exit(2)
	case "flaky":
		marker := filepath.Join(os.Getenv("HELPER_DIR"), "attempted")
		if _, err := os.Stat(marker); err != nil {
			_ = os.WriteFile(marker, nil, 0o644)
			fmt.Fprintln(os.Stderr, "first attempt fails")
			os.Exit(1)
		}
		fmt.Println(`{"success":true,"attempt":2}`)
	case "hang":
		time.Sleep(30 * time.Second)
	case "noresult":
		fmt.Println("nothing useful here")
	case "multiline":
		fmt.Println("{")
		fmt.Println(`  "success": true`)
		fmt.Println("}")
	case "slow":
		time.Sleep(200 * time.Millisecond)
		fmt.Println(`{"success":true}`)
	}
}

func helperConfig(mode string, env ...string) Config {
	return Config{
		Command: []string{os.Args[0], "-test.run=TestHelperProcess", "--"},
		Env:     append([]string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode}, env...),
		Timeout: 10 * time.Second,
	}
}

func noBackoff(int) time.Duration { return 0 }

func newBridge(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	b, err := New(cfg, WithBackoff(noBackoff))
	require.NoError(t, err)
	return b
}

func TestNewDefaults(t *testing.T) {
	b, err := New(Config{Command: []string{"verity", "analyze"}})
	require.NoError(t, err)

	cfg := b.Config()
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestExponentialBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, ExponentialBackoff(1))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(2))
}

func TestAnalyzeForwardsEventsAndReturnsResult(t *testing.T) {
	b := newBridge(t, helperConfig("ok"))
	rec := events.NewRecorder()

	res, err := b.Analyze(context.Background(), analysis.Request{Text: "claim", Stream: true}, rec)
	require.NoError(t, err)

	assert.True(t, res.Success())
	assert.Equal(t, "claim", res["text"])
	assert.Equal(t, []events.Kind{
		events.KindThinkingStart,
		events.KindThinkingDelta,
		events.KindComplete,
	}, rec.Kinds())
	assert.Equal(t, 0, b.InFlight())
}

func TestAnalyzeReturnsFailedResultWithoutRetry(t *testing.T) {
	b := newBridge(t, helperConfig("failed-result"))

	res, err := b.Analyze(context.Background(), analysis.Request{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, "no content provided", res.ErrorMessage())
}

func TestAnalyzeReportsStderrAfterRetries(t *testing.T) {
	cfg := helperConfig("crash")
	cfg.MaxRetries = 2
	b := newBridge(t, cfg)

	_, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "exited with code 2")
	assert.Contains(t, err.Error(), "boom: provider unreachable")
}

func TestAnalyzeRetriesProcessFailure(t *testing.T) {
	b := newBridge(t, helperConfig("flaky", "HELPER_DIR="+t.TempDir()))

	var delays []int
	b.backoff = func(attempt int) time.Duration {
		delays = append(delays, attempt)
		return 0
	}

	res, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.EqualValues(t, 2, res["attempt"])
	assert.Equal(t, []int{1}, delays)
}

func TestAnalyzeTimeoutKillsChild(t *testing.T) {
	cfg := helperConfig("hang")
	cfg.Timeout = 200 * time.Millisecond
	cfg.MaxRetries = 1
	b := newBridge(t, cfg)

	start := time.Now()
	_, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestAnalyzeNoResult(t *testing.T) {
	cfg := helperConfig("noresult")
	cfg.MaxRetries = 1
	b := newBridge(t, cfg)

	_, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
	assert.True(t, errors.Is(err, ErrNoResult))
}

func TestAnalyzeFallsBackToWholeOutput(t *testing.T) {
	b := newBridge(t, helperConfig("multiline"))

	res, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestAnalyzeEmitterFailureIsNotRetried(t *testing.T) {
	b := newBridge(t, helperConfig("ok"))

	var calls atomic.Int32
	emit := events.EmitterFunc(func(events.Kind, any) error {
		calls.Add(1)
		return errors.New("client went away")
	})

	_, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, emit)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client went away")
	assert.EqualValues(t, 1, calls.Load())
}

func TestAnalyzeCanceledContext(t *testing.T) {
	b := newBridge(t, helperConfig("hang"))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := b.Analyze(ctx, analysis.Request{Text: "x"}, nil)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPoolLimitsConcurrentChildren(t *testing.T) {
	cfg := helperConfig("slow")
	cfg.PoolSize = 1
	b := newBridge(t, cfg)

	var (
		wg      sync.WaitGroup
		maxSeen atomic.Int32
		stop    = make(chan struct{})
	)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if n := int32(b.InFlight()); n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Analyze(context.Background(), analysis.Request{Text: "x"}, nil)
			assert.NoError(t, err)
			assert.True(t, res.Success())
		}()
	}
	wg.Wait()
	close(stop)

	assert.EqualValues(t, 1, maxSeen.Load())
}
