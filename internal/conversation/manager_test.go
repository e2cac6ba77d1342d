package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petasbytes/chatd/internal/conversation"
	"github.com/petasbytes/chatd/internal/provider"
	"github.com/petasbytes/chatd/internal/windowing"
	"github.com/petasbytes/chatd/memory"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []provider.Request
	hook  func(ctx context.Context, req provider.Request) (provider.Reply, error)
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, req provider.Request) (provider.Reply, error) {
	f.mu.Lock()
	req.Messages = req.Messages.Clone()
	f.calls = append(f.calls, req)
	hook, reply, err := f.hook, f.reply, f.err
	f.mu.Unlock()

	if hook != nil {
		return hook(ctx, req)
	}
	if err != nil {
		return provider.Reply{}, err
	}
	return provider.Reply{Text: reply}, nil
}

func (f *fakeCompleter) Calls() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.calls...)
}

// spyStore counts calls and can fail saves.
type spyStore struct {
	memory.Store
	loads   atomic.Int32
	saves   atomic.Int32
	saveErr error
}

func (s *spyStore) Load(ctx context.Context) (memory.History, error) {
	s.loads.Add(1)
	return s.Store.Load(ctx)
}

func (s *spyStore) Save(ctx context.Context, h memory.History) error {
	s.saves.Add(1)
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.Store.Save(ctx, h)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T, c provider.Completer, opts conversation.Options) (*conversation.Manager, *spyStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat_history.json")
	fs, err := memory.NewFileStore(path)
	require.NoError(t, err)
	spy := &spyStore{Store: fs}
	opts.Logger = quietLogger()
	return conversation.NewManager(spy, c, opts), spy, path
}

func exchanges(n int) memory.Log {
	log := make(memory.Log, 0, 2*n)
	for i := 1; i <= n; i++ {
		log = append(log, memory.UserMessage(fmt.Sprintf("q%d", i)), memory.AssistantMessage(fmt.Sprintf("a%d", i)))
	}
	return log
}

func TestHandleTurn_FirstTurn(t *testing.T) {
	c := &fakeCompleter{reply: "hi there"}
	m, store, _ := newManager(t, c, conversation.Options{})

	res, err := m.HandleTurn(context.Background(), "u1", "hello")
	require.NoError(t, err)

	want := memory.Log{memory.UserMessage("hello"), memory.AssistantMessage("hi there")}
	assert.Equal(t, "hi there", res.Reply)
	assert.Equal(t, want, res.History)

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, memory.Equal(memory.History{"u1": want}, persisted), "persisted: %#v", persisted)

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, memory.Log{memory.UserMessage("hello")}, calls[0].Messages)
}

func TestHandleTurn_InvalidRequest_NoSideEffects(t *testing.T) {
	tests := []struct {
		name, user, msg, field string
	}{
		{"empty user", "", "hi", "user_id"},
		{"empty message", "u1", "", "message"},
		{"both empty", "", "", "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{reply: "x"}
			m, store, _ := newManager(t, c, conversation.Options{})

			_, err := m.HandleTurn(context.Background(), tt.user, tt.msg)

			var ie *conversation.InvalidRequestError
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
			assert.Equal(t, "user_id and message are required", err.Error())
			assert.Zero(t, store.loads.Load())
			assert.Zero(t, store.saves.Load())
			assert.Empty(t, c.Calls())
		})
	}
}

func TestHandleTurn_CorruptState_NoProviderCall(t *testing.T) {
	c := &fakeCompleter{reply: "x"}
	m, store, path := newManager(t, c, conversation.Options{})
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))

	_, err := m.HandleTurn(context.Background(), "u1", "hello")

	var ce *memory.CorruptStateError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, c.Calls())
	assert.Zero(t, store.saves.Load())
}

func TestHandleTurn_ProviderFailure_StateUnchanged(t *testing.T) {
	c := &fakeCompleter{reply: "first"}
	m, _, path := newManager(t, c, conversation.Options{})
	_, err := m.HandleTurn(context.Background(), "u1", "hello")
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	cause := errors.New("upstream exploded")
	c.mu.Lock()
	c.err = cause
	c.mu.Unlock()

	res, err := m.HandleTurn(context.Background(), "u1", "again")

	var pe *conversation.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fake", pe.Provider)
	assert.Empty(t, res.Reply)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "persisted state changed after provider failure")
}

// 14 prior messages: the next turn drops the two oldest from the provider context.
func TestHandleTurn_FullWindow_DropsOldestExchange(t *testing.T) {
	c := &fakeCompleter{reply: "a8"}
	m, store, _ := newManager(t, c, conversation.Options{})
	require.NoError(t, store.Save(context.Background(), memory.History{"u1": exchanges(7)}))

	res, err := m.HandleTurn(context.Background(), "u1", "q8")
	require.NoError(t, err)

	sent := c.Calls()[0].Messages
	require.Len(t, sent, 13)
	assert.Equal(t, memory.UserMessage("q2"), sent[0])
	assert.Equal(t, memory.UserMessage("q8"), sent[12])

	require.Len(t, res.History, 14)
	assert.Equal(t, memory.AssistantMessage("a8"), res.History[13])
}

func TestHandleTurn_MessageMode_PreservesOffByOne(t *testing.T) {
	c := &fakeCompleter{reply: "a8"}
	m, store, _ := newManager(t, c, conversation.Options{Mode: windowing.ModeMessage})
	require.NoError(t, store.Save(context.Background(), memory.History{"u1": exchanges(7)}))

	res, err := m.HandleTurn(context.Background(), "u1", "q8")
	require.NoError(t, err)

	sent := c.Calls()[0].Messages
	require.Len(t, sent, 14)
	assert.Equal(t, memory.AssistantMessage("a1"), sent[0])
	// The reply is appended after the trim, so 2*MaxExchanges+1 messages persist.
	assert.Len(t, res.History, 15)
}

func TestHandleTurn_MessageMode_RetrimAfterReply(t *testing.T) {
	c := &fakeCompleter{reply: "a8"}
	m, store, _ := newManager(t, c, conversation.Options{Mode: windowing.ModeMessage, RetrimAfterReply: true})
	require.NoError(t, store.Save(context.Background(), memory.History{"u1": exchanges(7)}))

	res, err := m.HandleTurn(context.Background(), "u1", "q8")
	require.NoError(t, err)
	assert.Len(t, res.History, 14)
	assert.Equal(t, memory.AssistantMessage("a8"), res.History[13])
}

func TestHandleTurn_WindowBoundAcrossManyTurns(t *testing.T) {
	modes := []conversation.Options{
		{Mode: windowing.ModeExchange},
		{Mode: windowing.ModeMessage},
		{Mode: windowing.ModeMessage, RetrimAfterReply: true},
		{Mode: windowing.ModeExchange, MaxExchanges: 2},
	}
	for _, opts := range modes {
		t.Run(fmt.Sprintf("%s_%d_%t", opts.Mode, opts.MaxExchanges, opts.RetrimAfterReply), func(t *testing.T) {
			c := &fakeCompleter{reply: "r"}
			m, store, _ := newManager(t, c, opts)
			limit := m.Limit()
			for i := 0; i < 25; i++ {
				_, err := m.HandleTurn(context.Background(), "u1", fmt.Sprintf("m%d", i))
				require.NoError(t, err)

				calls := c.Calls()
				assert.LessOrEqual(t, len(calls[len(calls)-1].Messages), limit)

				h, err := store.Load(context.Background())
				require.NoError(t, err)
				assert.LessOrEqual(t, len(h["u1"]), limit+1)
				if opts.Mode == windowing.ModeExchange || opts.RetrimAfterReply {
					assert.LessOrEqual(t, len(h["u1"]), limit)
				}
			}
		})
	}
}

func TestHandleTurn_OptionsReachProvider(t *testing.T) {
	c := &fakeCompleter{reply: "ok"}
	m, _, _ := newManager(t, c, conversation.Options{Model: "gpt-test", SystemPrompt: "be brief"})

	_, err := m.HandleTurn(context.Background(), "u1", "hello")
	require.NoError(t, err)

	call := c.Calls()[0]
	assert.Equal(t, "gpt-test", call.Model)
	assert.Equal(t, "be brief", call.System)
}

func TestHandleTurn_PersistenceFailure(t *testing.T) {
	c := &fakeCompleter{reply: "hi"}
	m, store, path := newManager(t, c, conversation.Options{})
	store.saveErr = &memory.PersistenceError{Source: "disk", Err: errors.New("no space left on device")}

	res, err := m.HandleTurn(context.Background(), "u1", "hello")

	var pe *memory.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Empty(t, res.Reply)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "nothing should have been written")
}

func TestHandleTurn_ProviderTimeout(t *testing.T) {
	c := &fakeCompleter{hook: func(ctx context.Context, _ provider.Request) (provider.Reply, error) {
		<-ctx.Done()
		return provider.Reply{}, ctx.Err()
	}}
	m, store, _ := newManager(t, c, conversation.Options{ProviderTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := m.HandleTurn(context.Background(), "u1", "hello")

	var pe *conversation.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Zero(t, store.saves.Load())
}

func TestHandleTurn_OtherUsersUntouched(t *testing.T) {
	c := &fakeCompleter{reply: "r"}
	m, store, _ := newManager(t, c, conversation.Options{})
	other := exchanges(3)
	require.NoError(t, store.Save(context.Background(), memory.History{"u2": other}))

	_, err := m.HandleTurn(context.Background(), "u1", "hello")
	require.NoError(t, err)

	h, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, other, h["u2"])
	assert.Len(t, h["u1"], 2)
}

// Overlapping turns for different users must both persist (no lost update).
func TestHandleTurn_ConcurrentDifferentUsers(t *testing.T) {
	const users = 8
	var arrived sync.WaitGroup
	arrived.Add(users)
	release := make(chan struct{})
	c := &fakeCompleter{hook: func(ctx context.Context, req provider.Request) (provider.Reply, error) {
		arrived.Done()
		<-release
		return provider.Reply{Text: "re: " + req.Messages[len(req.Messages)-1].Content}, nil
	}}
	m, store, _ := newManager(t, c, conversation.Options{})

	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.HandleTurn(context.Background(), fmt.Sprintf("u%d", i), fmt.Sprintf("msg%d", i))
			errs <- err
		}(i)
	}
	arrived.Wait() // every turn is inside the provider call at once
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	h, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, h, users)
	for i := 0; i < users; i++ {
		want := memory.Log{memory.UserMessage(fmt.Sprintf("msg%d", i)), memory.AssistantMessage(fmt.Sprintf("re: msg%d", i))}
		assert.Equal(t, want, h[fmt.Sprintf("u%d", i)])
	}
}

// Turns for one user run one at a time, each seeing the previous turn's result.
func TestHandleTurn_ConcurrentSameUserSerialized(t *testing.T) {
	var inside, maxInside atomic.Int32
	c := &fakeCompleter{hook: func(ctx context.Context, req provider.Request) (provider.Reply, error) {
		n := inside.Add(1)
		defer inside.Add(-1)
		for {
			cur := maxInside.Load()
			if n <= cur || maxInside.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return provider.Reply{Text: "r"}, nil
	}}
	m, store, _ := newManager(t, c, conversation.Options{MaxExchanges: 50})

	const turns = 6
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.HandleTurn(context.Background(), "u1", fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	h, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, h["u1"], 2*turns)
}

func TestHandleTurn_CanceledWhileWaitingForUser(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := &fakeCompleter{hook: func(ctx context.Context, _ provider.Request) (provider.Reply, error) {
		close(entered)
		<-release
		return provider.Reply{Text: "r"}, nil
	}}
	m, _, _ := newManager(t, c, conversation.Options{})

	done := make(chan error, 1)
	go func() {
		_, err := m.HandleTurn(context.Background(), "u1", "first")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.HandleTurn(ctx, "u1", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, c.Calls(), 1)
}

func TestHandleTurn_WorksWithEveryStore(t *testing.T) {
	for _, kind := range []memory.Kind{memory.KindFile, memory.KindBolt, memory.KindSQLite} {
		t.Run(string(kind), func(t *testing.T) {
			s, err := memory.Open(kind, filepath.Join(t.TempDir(), "h."+string(kind)))
			require.NoError(t, err)
			defer s.Close()

			c := &fakeCompleter{reply: "hi there"}
			m := conversation.NewManager(s, c, conversation.Options{Logger: quietLogger()})
			for i := 0; i < 9; i++ {
				_, err := m.HandleTurn(context.Background(), "u1", fmt.Sprintf("m%d", i))
				require.NoError(t, err)
			}
			h, err := s.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, h["u1"], 14)
			assert.Equal(t, memory.UserMessage("m2"), h["u1"][0])
		})
	}
}

func TestHandleTurn_CanceledContext_NoSideEffects(t *testing.T) {
	c := &fakeCompleter{reply: "r"}
	m, store, _ := newManager(t, c, conversation.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		_, err := m.HandleTurn(ctx, "u1", "hello")
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Zero(t, store.loads.Load())
	assert.Zero(t, store.saves.Load())
	assert.Empty(t, c.Calls())
}
