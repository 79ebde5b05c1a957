package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aggregator/aggregator/utils/logging"

	"go.uber.org/zap"
)

const PreferenceModel = "model"

type Options struct {
	Session   SessionStore
	Model     ModelBackend
	History   HistoryBackend // optional
	Persister Persister      // optional
	Clipboard Clipboard      // optional, defaults to SystemClipboard

	ModelID string // initial model selector; the stored preference wins
	Labels  Labels
	// Stream asks the backend for incremental chunks instead of one response.
	Stream        bool
	MirrorTimeout time.Duration
	Now           func() time.Time
}

// Coordinator owns one conversation view. All methods are safe for concurrent
// use; at most one Send is in flight at a time.
type Coordinator struct {
	opts Options

	mu        sync.Mutex
	sessionID string
	modelID   string
	messages  []Message
	pending   []Attachment
	sending   bool
	// gen changes whenever the message list is reset, so an in-flight send
	// never writes into a list it did not start in.
	gen int

	mirrors sync.WaitGroup
}

func New(opts Options) *Coordinator {
	if opts.Clipboard == nil {
		opts.Clipboard = SystemClipboard{}
	}
	if opts.Labels == (Labels{}) {
		opts.Labels = DefaultLabels
	}
	if opts.MirrorTimeout == 0 {
		opts.MirrorTimeout = 10 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{opts: opts, modelID: opts.ModelID}
}

// Init resolves the session id (creating and storing one when none is saved)
// and seeds the list from the remote history. A history failure leaves the
// list empty and is not returned.
func (c *Coordinator) Init(ctx context.Context) error {
	id, err := c.opts.Session.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if id == "" {
		id = NewSessionID()
		if err := c.opts.Session.Save(ctx, id); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	if m := c.opts.Session.Preference(PreferenceModel); m != "" {
		c.mu.Lock()
		c.modelID = m
		c.mu.Unlock()
	}

	var seeded []Message
	if c.opts.History != nil {
		stored, err := c.opts.History.History(ctx, id)
		if err != nil {
			logging.ErrorLogger.Error("load chat history", zap.String("session_id", id), zap.Error(err))
		} else {
			seeded = fromStored(stored)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
	c.messages = seeded
	c.gen++
	logging.AppLogger.Info("chat session ready", zap.String("session_id", id), zap.Int("messages", len(seeded)))
	return nil
}

func fromStored(stored []StoredMessage) []Message {
	out := make([]Message, 0, len(stored))
	for _, s := range stored {
		m := Message{Role: s.Role, Content: s.Content, Model: s.Model}
		if !s.CreatedAt.IsZero() {
			ts := s.CreatedAt
			m.Timestamp = &ts
		}
		out = append(out, m)
	}
	return out
}

// NewSession replaces the session id and empties the list.
func (c *Coordinator) NewSession(ctx context.Context) (string, error) {
	id := NewSessionID()
	if err := c.opts.Session.Save(ctx, id); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
	c.messages = nil
	c.gen++
	return id, nil
}

// Clear empties the list but keeps the session.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.gen++
}

func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Coordinator) ModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelID
}

// SetModel changes the model selector for later sends and stores it as a
// preference.
func (c *Coordinator) SetModel(id string) error {
	c.mu.Lock()
	c.modelID = id
	c.mu.Unlock()
	return c.opts.Session.SetPreference(PreferenceModel, id)
}

// Messages returns a snapshot of the list.
func (c *Coordinator) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Coordinator) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *Coordinator) Attach(files ...Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, files...)
}

// AttachFiles reads and attaches paths; nothing is attached if any read fails.
func (c *Coordinator) AttachFiles(ctx context.Context, paths ...string) ([]Attachment, error) {
	files, err := ReadAttachments(ctx, paths...)
	if err != nil {
		return nil, err
	}
	c.Attach(files...)
	return files, nil
}

func (c *Coordinator) RemoveAttachment(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.pending) {
		return ErrNoSuchAttachment
	}
	next := make([]Attachment, 0, len(c.pending)-1)
	next = append(next, c.pending[:i]...)
	c.pending = append(next, c.pending[i+1:]...)
	return nil
}

func (c *Coordinator) PendingAttachments() []Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Attachment, len(c.pending))
	copy(out, c.pending)
	return out
}

// Send appends the user message and an empty assistant placeholder, then
// fills the placeholder from the model backend in the background. Pending
// attachments are consumed immediately.
func (c *Coordinator) Send(ctx context.Context, text string) (*Reply, error) {
	c.mu.Lock()
	if c.sessionID == "" {
		c.mu.Unlock()
		return nil, ErrNoSession
	}
	if strings.TrimSpace(text) == "" && len(c.pending) == 0 {
		c.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}

	history := trailingHistory(c.messages)
	files := c.pending
	c.pending = nil
	now := c.opts.Now()
	user := Message{
		Role:      RoleUser,
		Content:   composeUserContent(text, files),
		Timestamp: &now,
		Files:     files,
	}
	c.messages = append(c.messages, user, Message{Role: RoleAssistant})
	c.sending = true
	t := turn{
		gen:         c.gen,
		placeholder: len(c.messages) - 1,
		user:        user,
		req: SendRequest{
			Message:     text,
			SessionID:   c.sessionID,
			ModelID:     c.modelID,
			History:     history,
			Attachments: files,
			Stream:      c.opts.Stream,
		},
	}
	c.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	reply := newReply(runCtx, cancel)
	go c.run(runCtx, reply, t)
	return reply, nil
}

type turn struct {
	gen         int
	placeholder int
	user        Message
	req         SendRequest
}

func (c *Coordinator) run(ctx context.Context, reply *Reply, t turn) {
	var (
		final Message
		err   error
	)
	// finish runs last so Wait returns only after this goroutine is done.
	defer func() { reply.finish(final, err) }()
	defer reply.cancel()
	defer logging.LogDuration(ctx, "chat_send")()

	var model string
	s, err := c.opts.Model.Send(ctx, t.req)
	if err == nil {
		for chunk := range s.Chunks() {
			c.appendChunk(t, chunk)
			reply.emit(chunk)
		}
		err = s.Err()
		model = s.Model()
	}
	if model == "" {
		model = t.req.ModelID
	}

	final = c.complete(t, model, err)
	if err != nil {
		logging.ErrorLogger.Error("chat send failed",
			zap.String("session_id", t.req.SessionID),
			zap.String("category", Classify(err).String()),
			zap.Error(err))
		return
	}
	// no selector means the server picked its default; record what served it
	userModel := t.req.ModelID
	if userModel == "" {
		userModel = model
	}
	c.mirror(
		SaveRequest{SessionID: t.req.SessionID, Model: userModel, Role: RoleUser, Content: t.user.Content},
		SaveRequest{SessionID: t.req.SessionID, Model: model, Role: RoleAssistant, Content: final.Content},
	)
}

func (c *Coordinator) appendChunk(t turn, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != t.gen {
		return
	}
	c.messages[t.placeholder].Content += chunk
}

// complete releases the send slot and settles the placeholder: the served
// model on success, the user-facing error text on failure.
func (c *Coordinator) complete(t turn, model string, err error) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	var msg Message
	if c.gen == t.gen {
		p := &c.messages[t.placeholder]
		if err != nil {
			p.Content = UserMessage(err)
		} else {
			p.Model = model
		}
		now := c.opts.Now()
		p.Timestamp = &now
		msg = *p
	} else {
		msg = Message{Role: RoleAssistant, Model: model}
		if err != nil {
			msg.Content = UserMessage(err)
		}
	}
	return msg
}

func (c *Coordinator) mirror(reqs ...SaveRequest) {
	if c.opts.Persister == nil {
		return
	}
	c.mirrors.Add(1)
	go func() {
		defer c.mirrors.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.MirrorTimeout)
		defer cancel()
		for _, r := range reqs {
			if strings.TrimSpace(r.Content) == "" {
				continue
			}
			if err := c.opts.Persister.SaveMessage(ctx, r); err != nil {
				logging.ErrorLogger.Error("mirror chat message",
					zap.String("session_id", r.SessionID),
					zap.String("role", string(r.Role)),
					zap.Error(err))
			}
		}
	}()
}

// Flush waits for background persistence started by completed sends.
func (c *Coordinator) Flush() {
	c.mirrors.Wait()
}

// Transcript renders the current list with the configured labels.
func (c *Coordinator) Transcript() string {
	return Transcript(c.Messages(), c.opts.Labels)
}

// Export writes the transcript to dir/chat-YYYY-MM-DD.txt.
func (c *Coordinator) Export(dir string) (string, error) {
	return writeTranscript(dir, c.Transcript(), c.opts.Now())
}

// Copy puts message i's content on the clipboard.
func (c *Coordinator) Copy(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.messages) {
		c.mu.Unlock()
		return ErrNoSuchMessage
	}
	content := c.messages[i].Content
	c.mu.Unlock()
	return c.opts.Clipboard.WriteAll(content)
}

// Reply is the in-order sequence of increments for one send.
type Reply struct {
	ctx    context.Context
	cancel context.CancelFunc
	chunks chan string
	done   chan struct{}
	msg    Message
	err    error
}

func newReply(ctx context.Context, cancel context.CancelFunc) *Reply {
	return &Reply{
		ctx:    ctx,
		cancel: cancel,
		chunks: make(chan string, 16),
		done:   make(chan struct{}),
	}
}

// Chunks is closed when the send completes. Callers that do not read it must
// call Wait.
func (r *Reply) Chunks() <-chan string { return r.chunks }

func (r *Reply) Done() <-chan struct{} { return r.done }

// Wait drains remaining chunks and returns the settled assistant message and
// the terminal error, if any.
func (r *Reply) Wait() (Message, error) {
	for range r.chunks {
	}
	<-r.done
	return r.msg, r.err
}

// Cancel aborts the send; it completes with a context error.
func (r *Reply) Cancel() { r.cancel() }

func (r *Reply) emit(chunk string) {
	select {
	case r.chunks <- chunk:
	case <-r.ctx.Done():
	}
}

func (r *Reply) finish(msg Message, err error) {
	r.msg = msg
	r.err = err
	close(r.chunks)
	close(r.done)
}
