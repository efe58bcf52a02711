// Package executor validates structured actions, applies them to the
// task store, and emits change events for the sync fan-out.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"voicetasks-backend/internal/intent"
	"voicetasks-backend/internal/resolver"
	"voicetasks-backend/internal/tasks"
	"voicetasks-backend/internal/ws"
)

// Reason classifies why a command did not mutate state. Rejections are
// still well-formed responses, never errors: the caller is a human
// awaiting conversational feedback.
type Reason string

// snapshotRetries is how many extra snapshot rounds clear-completed
// attempts before dropping its change event.
const snapshotRetries = 2

const (
	ReasonNone             Reason = ""
	ReasonLowConfidence    Reason = "low_confidence"
	ReasonMalformedAction  Reason = "malformed_action"
	ReasonAmbiguous        Reason = "ambiguous_reference"
	ReasonNotFound         Reason = "task_not_found"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

// Result is the caller-facing outcome of one command.
type Result struct {
	Action  intent.Action `json:"action"`
	Success bool          `json:"success"`
	Message string        `json:"message"`

	// Reason is set on failures; it is diagnostic, not part of the
	// response surface.
	Reason Reason `json:"-"`
}

// Broadcaster consumes change events. Delivery problems stay inside the
// broadcaster; the executor's caller never sees them.
type Broadcaster interface {
	Broadcast(ws.Message)
}

type Options struct {
	// ConfidenceThreshold gates every kind except list.
	ConfidenceThreshold float64
	// Resolver tunes fuzzy reference matching.
	Resolver resolver.Options
	// StoreTimeout bounds each store call.
	StoreTimeout time.Duration
	// RetryDelay is the pause before the single store retry.
	RetryDelay time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func DefaultOptions() Options {
	return Options{
		ConfidenceThreshold: 0.6,
		Resolver:            resolver.DefaultOptions(),
		StoreTimeout:        5 * time.Second,
		RetryDelay:          250 * time.Millisecond,
	}
}

type Executor struct {
	store tasks.Store
	sink  Broadcaster // may be nil
	opts  Options

	mu      sync.Mutex
	idLocks map[int]*sync.Mutex
	// listLock serializes bulk mutations (clear-completed) against
	// per-id mutations: per-id paths hold it shared, the bulk path
	// holds it exclusively.
	listLock sync.RWMutex
}

func New(store tasks.Store, sink Broadcaster, opts Options) *Executor {
	if opts.ConfidenceThreshold == 0 {
		opts.ConfidenceThreshold = DefaultOptions().ConfidenceThreshold
	}
	if opts.Resolver.MatchThreshold == 0 {
		opts.Resolver = resolver.DefaultOptions()
	}
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = DefaultOptions().StoreTimeout
	}
	if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultOptions().RetryDelay
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.sleep == nil {
		opts.sleep = time.Sleep
	}
	return &Executor{
		store:   store,
		sink:    sink,
		opts:    opts,
		idLocks: make(map[int]*sync.Mutex),
	}
}

// SetClock overrides the time source and retry sleeper. Test hook.
func (e *Executor) SetClock(now func() time.Time, sleep func(time.Duration)) {
	e.opts.now = now
	e.opts.sleep = sleep
}

// Execute runs one structured action through validate -> resolve ->
// apply -> emit. It always returns a well-formed result.
func (e *Executor) Execute(ctx context.Context, action intent.Action) Result {
	if !action.Kind.Valid() {
		return fail(action, ReasonMalformedAction, "I can't handle that kind of request.")
	}

	// unclear never mutates and carries minimum confidence by
	// construction, so it is answered before the gate: the engine just
	// echoes the conversational response back.
	if action.Kind == intent.KindUnclear {
		msg := action.Message
		if msg == "" {
			msg = action.Clarification
		}
		return Result{Action: action, Success: true, Message: msg}
	}

	// confidence gate: everything except list demands a minimum
	if action.Confidence < e.opts.ConfidenceThreshold && action.Kind != intent.KindList {
		msg := action.Clarification
		if msg == "" {
			msg = "I'm not confident I understood that correctly. Could you rephrase?"
		}
		return fail(action, ReasonLowConfidence, msg)
	}

	switch action.Kind {
	case intent.KindAdd:
		return e.add(ctx, action)
	case intent.KindComplete:
		return e.complete(ctx, action)
	case intent.KindModify:
		return e.modify(ctx, action)
	case intent.KindUpdateReminder:
		return e.updateReminder(ctx, action)
	case intent.KindClearCompleted:
		return e.clearCompleted(ctx, action)
	case intent.KindList:
		return e.list(ctx, action)
	default:
		// unreachable: the kind set is closed and unclear is handled
		// above
		return fail(action, ReasonMalformedAction, "I can't handle that kind of request.")
	}
}

func (e *Executor) add(ctx context.Context, action intent.Action) Result {
	desc := strings.TrimSpace(action.TaskDescription)
	if desc == "" {
		return fail(action, ReasonMalformedAction, "I need a description for the new task.")
	}

	t := tasks.Task{
		Description: desc,
		Priority:    tasks.DefaultPriority,
		Category:    tasks.DefaultCategory,
		Recurring:   action.Recurring,
	}
	if action.Priority != nil {
		t.Priority = tasks.ClampPriority(*action.Priority)
	}
	if action.Category != "" {
		t.Category = action.Category
	}
	if action.ReminderSeconds != nil && *action.ReminderSeconds > 0 {
		at := e.opts.now().Add(time.Duration(*action.ReminderSeconds) * time.Second)
		t.RemindAt = &at
	}

	e.listLock.RLock()
	defer e.listLock.RUnlock()

	created, err := withRetry(e, ctx, func(ctx context.Context) (tasks.Task, error) {
		return e.store.Create(ctx, t)
	})
	if err != nil {
		return storeFail(action, err)
	}

	e.emit(ws.TaskUpdate(created))
	return ok(action, fmt.Sprintf("I've added '%s' to your tasks.", created.Description))
}

func (e *Executor) complete(ctx context.Context, action intent.Action) Result {
	target, res := e.resolve(ctx, action)
	if res != nil {
		return *res
	}

	unlock := e.lockID(target.ID)
	defer unlock()

	// re-read under the lock: the resolved copy may be stale
	current, err := withRetry(e, ctx, func(ctx context.Context) (tasks.Task, error) {
		return e.store.Get(ctx, target.ID)
	})
	if err != nil {
		return storeFail(action, err)
	}
	if current.Completed {
		// idempotent: completing a completed task is a no-op success
		return ok(action, fmt.Sprintf("'%s' was already completed.", current.Description))
	}

	done := true
	updated, err := withRetry(e, ctx, func(ctx context.Context) (tasks.Task, error) {
		return e.store.Update(ctx, target.ID, tasks.Update{Completed: &done})
	})
	if err != nil {
		return storeFail(action, err)
	}

	e.emit(ws.TaskUpdate(updated))
	return ok(action, fmt.Sprintf("Marked '%s' as complete.", updated.Description))
}

func (e *Executor) modify(ctx context.Context, action intent.Action) Result {
	upd := tasks.Update{}
	if d := strings.TrimSpace(action.NewDescription); d != "" {
		upd.Description = &d
	}
	if action.Priority != nil {
		upd.Priority = action.Priority
	}
	if action.Category != "" {
		cat := action.Category
		upd.Category = &cat
	}
	if action.ReminderSeconds != nil {
		if *action.ReminderSeconds > 0 {
			at := e.opts.now().Add(time.Duration(*action.ReminderSeconds) * time.Second)
			upd.RemindAt = &at
		} else {
			upd.ClearRemindAt = true
		}
	}
	if upd.Empty() {
		return fail(action, ReasonMalformedAction, "I couldn't tell what you want to change about that task.")
	}

	target, res := e.resolve(ctx, action)
	if res != nil {
		return *res
	}

	unlock := e.lockID(target.ID)
	defer unlock()

	updated, err := withRetry(e, ctx, func(ctx context.Context) (tasks.Task, error) {
		return e.store.Update(ctx, target.ID, upd)
	})
	if err != nil {
		return storeFail(action, err)
	}

	e.emit(ws.TaskUpdate(updated))
	return ok(action, fmt.Sprintf("Updated '%s'.", updated.Description))
}

func (e *Executor) updateReminder(ctx context.Context, action intent.Action) Result {
	target, res := e.resolve(ctx, action)
	if res != nil {
		return *res
	}

	unlock := e.lockID(target.ID)
	defer unlock()

	upd := tasks.Update{}
	clearing := action.ReminderSeconds == nil || *action.ReminderSeconds <= 0
	if clearing {
		upd.ClearRemindAt = true
	} else {
		at := e.opts.now().Add(time.Duration(*action.ReminderSeconds) * time.Second)
		upd.RemindAt = &at
	}

	updated, err := withRetry(e, ctx, func(ctx context.Context) (tasks.Task, error) {
		return e.store.Update(ctx, target.ID, upd)
	})
	if err != nil {
		return storeFail(action, err)
	}

	e.emit(ws.TaskUpdate(updated))
	if clearing {
		return ok(action, fmt.Sprintf("Cleared the reminder for '%s'.", updated.Description))
	}
	return ok(action, fmt.Sprintf("I'll remind you about '%s'.", updated.Description))
}

func (e *Executor) clearCompleted(ctx context.Context, action intent.Action) Result {
	e.listLock.Lock()
	count, err := withRetry(e, ctx, func(ctx context.Context) (int, error) {
		return e.store.DeleteCompleted(ctx)
	})
	e.listLock.Unlock()
	if err != nil {
		return storeFail(action, err)
	}

	// the deletion is committed at this point, so the snapshot event
	// must go out: keep retrying the fetch before giving up on it.
	list, err := e.snapshot(ctx)
	for i := 0; err != nil && i < snapshotRetries; i++ {
		log.Println("executor: post-clear snapshot failed, retrying:", err)
		e.opts.sleep(e.opts.RetryDelay)
		list, err = e.snapshot(ctx)
	}
	if err != nil {
		log.Println("executor: dropping post-clear snapshot event, clients resync on reconnect:", err)
	} else {
		e.emit(ws.TasksUpdate(list))
	}
	return ok(action, fmt.Sprintf("Cleared %d completed tasks.", count))
}

func (e *Executor) list(ctx context.Context, action intent.Action) Result {
	list, err := e.snapshot(ctx)
	if err != nil {
		return storeFail(action, err)
	}

	e.emit(ws.TasksUpdate(list))
	msg := action.Message
	if msg == "" {
		msg = fmt.Sprintf("You have %d tasks.", len(list))
	}
	return ok(action, msg)
}

// resolve maps the action's free-text task reference to a concrete
// task. On anything other than a unique match it returns the final
// result for the caller; no mutation has happened.
func (e *Executor) resolve(ctx context.Context, action intent.Action) (tasks.Task, *Result) {
	ref := strings.TrimSpace(action.TaskIdentifier)
	if ref == "" {
		r := fail(action, ReasonMalformedAction, "I couldn't tell which task you meant.")
		return tasks.Task{}, &r
	}

	list, err := withRetry(e, ctx, func(ctx context.Context) ([]tasks.Task, error) {
		return e.store.List(ctx, true)
	})
	if err != nil {
		r := storeFail(action, err)
		return tasks.Task{}, &r
	}

	switch res := resolver.Resolve(ref, list, e.opts.Resolver); res.Kind {
	case resolver.Unique:
		return res.Task, nil
	case resolver.Ambiguous:
		names := make([]string, len(res.Candidates))
		for i, c := range res.Candidates {
			names[i] = "'" + c.Task.Description + "'"
		}
		r := fail(action, ReasonAmbiguous,
			fmt.Sprintf("I found several matching tasks. Did you mean %s?", strings.Join(names, ", ")))
		return tasks.Task{}, &r
	default:
		r := fail(action, ReasonNotFound,
			fmt.Sprintf("I couldn't find a task matching '%s'.", ref))
		return tasks.Task{}, &r
	}
}

func (e *Executor) snapshot(ctx context.Context) ([]tasks.Task, error) {
	return withRetry(e, ctx, func(ctx context.Context) ([]tasks.Task, error) {
		return e.store.List(ctx, true)
	})
}

// withRetry bounds one store call and retries it once with backoff
// when the store is unreachable.
func withRetry[T any](e *Executor, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	call := func() (T, error) {
		cctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
		defer cancel()
		return fn(cctx)
	}

	v, err := call()
	if err != nil && errors.Is(err, tasks.ErrStoreUnavailable) {
		log.Println("executor: store unavailable, retrying once:", err)
		e.opts.sleep(e.opts.RetryDelay)
		v, err = call()
	}
	return v, err
}

// lockID serializes mutations per task identifier; disjoint ids run in
// parallel. Bulk operations exclude all of them via listLock.
func (e *Executor) lockID(id int) func() {
	e.listLock.RLock()

	e.mu.Lock()
	l, ok := e.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		e.idLocks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		e.listLock.RUnlock()
	}
}

// emit hands one change event to the broadcaster. Fan-out problems
// never fail the command that produced the event.
func (e *Executor) emit(m ws.Message) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Println("executor: broadcast panicked, command unaffected:", r)
		}
	}()
	e.sink.Broadcast(m)
}

func ok(action intent.Action, fallbackMsg string) Result {
	msg := action.Message
	if msg == "" {
		msg = fallbackMsg
	}
	return Result{Action: action, Success: true, Message: msg}
}

func fail(action intent.Action, reason Reason, msg string) Result {
	return Result{Action: action, Success: false, Message: msg, Reason: reason}
}

func storeFail(action intent.Action, err error) Result {
	log.Println("executor: store operation failed:", err)
	return fail(action, ReasonStoreUnavailable, "I'm having trouble reaching your task list right now. Please try again.")
}
