// Package pipeline wires the message store, contact directory and transform
// stage into a single one-shot extraction run: load everything once, then
// push one normalized event per message to a caller-supplied sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Napageneral/chronicle-imessage/imessage"
	"github.com/Napageneral/chronicle-imessage/internal/contacts"
	"github.com/Napageneral/chronicle-imessage/internal/transform"
)

// Options configures a single extraction run.
type Options struct {
	DBPath          string // chat.db path; empty means the platform default
	AddressBookDir  string // search root for the synced address book
	AddressBookPath string // explicit address book path, skips the search
	SinceUnix       int64  // exclusive lower bound on message date
	UntilUnix       int64  // exclusive upper bound on message date
	Limit           int    // max messages, applied after newest-first ordering
	LoadAttachments bool
	OnlyAttachments bool // restrict to messages flagged as having attachments
	Lenient         bool // skip-and-log unresolvable senders instead of failing
	Workers         int  // transform parallelism; <=1 keeps input order

	// Operator identity overrides. Explicit values win over anything the
	// address book or account store would resolve.
	MyPhoneNumber     string
	MyName            string
	ICloudAccountID   string
	ICloudAccountDSID string
	ICloudDisplayName string
}

// Sink receives normalized events one at a time. Calls are serialized even
// when the transform stage runs on multiple workers, but ordering is only
// guaranteed for single-worker runs; consumers key on dedupe keys.
type Sink func(*transform.Event) error

// Pipeline is a one-shot extraction run over a chat.db snapshot.
type Pipeline struct {
	opts       Options
	log        *logrus.Logger
	accounts   contacts.AccountSource
	normalizer *transform.Normalizer
}

// New builds a pipeline with the default account source and normalizer.
func New(opts Options, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		opts:       opts,
		log:        log,
		accounts:   contacts.DefaultsAccountSource{},
		normalizer: transform.NewNormalizer(),
	}
}

// SetAccountSource replaces the OS account-configuration source.
func (p *Pipeline) SetAccountSource(src contacts.AccountSource) {
	p.accounts = src
}

// SetNormalizer replaces the event normalizer, mainly so tests can inject
// fake encoder/recognizer collaborators.
func (p *Pipeline) SetNormalizer(n *transform.Normalizer) {
	p.normalizer = n
}

// Run executes one extraction pass, pushing each normalized event to sink.
// The first fatal error halts remaining output.
func (p *Pipeline) Run(ctx context.Context, sink Sink) error {
	runID := uuid.New().String()[:8]
	log := p.log.WithField("run_id", runID)

	dbPath := p.opts.DBPath
	if dbPath == "" {
		dbPath = imessage.DefaultDBPath()
	}
	db, err := imessage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open chat.db: %w", err)
	}
	defer db.Close()

	if total, err := db.CountMessages(); err == nil {
		log.WithField("total_messages", total).Debug("opened chat.db")
	}

	dir := p.openDirectory(log)
	me := p.resolveMe(dir, log)

	chats, err := db.LoadChatParticipants(dir)
	if err != nil {
		return fmt.Errorf("load chat participants: %w", err)
	}

	messages, err := db.LoadMessages(imessage.MessageQuery{
		SinceUnix:           p.opts.SinceUnix,
		UntilUnix:           p.opts.UntilUnix,
		Limit:               p.opts.Limit,
		OnlyWithAttachments: p.opts.OnlyAttachments,
	})
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	log.WithFields(logrus.Fields{
		"messages": len(messages),
		"chats":    len(chats),
	}).Info("loaded message rows")

	attachments := make(map[int64][]imessage.AttachmentRow)
	if p.opts.LoadAttachments {
		ids := make([]int64, 0, len(messages))
		for _, m := range messages {
			ids = append(ids, m.RowID)
		}
		attachments, err = db.LoadAttachments(ids)
		if err != nil {
			return fmt.Errorf("load attachments: %w", err)
		}
	}

	var emitted, skipped int64
	if p.opts.Workers > 1 {
		err = p.runParallel(ctx, messages, chats, attachments, me, sink, log, &emitted, &skipped)
	} else {
		err = p.runSequential(ctx, messages, chats, attachments, me, sink, log, &emitted, &skipped)
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"emitted": emitted,
		"skipped": skipped,
	}).Info("extraction complete")
	return nil
}

// openDirectory locates and loads the address book, degrading to an empty
// directory when it is absent or unreadable. Missing contact names are a
// quality loss, not a failure.
func (p *Pipeline) openDirectory(log *logrus.Entry) *contacts.Directory {
	path := p.opts.AddressBookPath
	if path == "" {
		root := p.opts.AddressBookDir
		if root == "" {
			root = contacts.DefaultSourcesDir()
		}
		found, err := contacts.FindAddressBook(root)
		if err != nil {
			log.WithError(err).Warn("address book unavailable, contact names will be absent")
			return contacts.NewEmpty()
		}
		path = found
	}

	dir, err := contacts.Open(path)
	if err != nil {
		log.WithError(err).Warn("address book unreadable, contact names will be absent")
		return contacts.NewEmpty()
	}
	log.WithField("address_book", path).Debug("loaded contact directory")
	return dir
}

// resolveMe builds the operator identity once per run. Config overrides win;
// the directory and the OS account store fill in the rest. A branch that
// stays nil only matters when a message's namespace requires it.
func (p *Pipeline) resolveMe(dir *contacts.Directory, log *logrus.Entry) transform.Me {
	var me transform.Me

	if p.opts.MyPhoneNumber != "" {
		me.Phone = &transform.PhoneIdentity{
			PhoneNumber: p.opts.MyPhoneNumber,
			Name:        p.opts.MyName,
		}
	} else if pc, ok := dir.MyPhoneContact(); ok {
		name := p.opts.MyName
		if name == "" {
			name = pc.FullName
		}
		me.Phone = &transform.PhoneIdentity{PhoneNumber: pc.PhoneNumber, Name: name}
	}

	if p.opts.ICloudAccountID != "" {
		me.ICloud = &transform.ICloudIdentity{
			AccountID:   p.opts.ICloudAccountID,
			AccountDSID: p.opts.ICloudAccountDSID,
			DisplayName: p.opts.ICloudDisplayName,
		}
	} else if acct, err := contacts.ReadICloudAccount(p.accounts); err == nil {
		me.ICloud = &transform.ICloudIdentity{
			AccountID:   acct.AccountID,
			AccountDSID: acct.AccountDSID,
			DisplayName: acct.DisplayName,
		}
	} else {
		log.WithError(err).Debug("icloud account unavailable")
	}

	return me
}

func (p *Pipeline) runSequential(
	ctx context.Context,
	messages []imessage.MessageRow,
	chats map[int64][]imessage.ChatParticipant,
	attachments map[int64][]imessage.AttachmentRow,
	me transform.Me,
	sink Sink,
	log *logrus.Entry,
	emitted, skipped *int64,
) error {
	for _, msg := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := p.transformOne(msg, chats[msg.ChatID], attachments[msg.RowID], me)
		if err != nil {
			if p.skippable(err, log) {
				*skipped++
				continue
			}
			return err
		}
		if err := sink(event); err != nil {
			return fmt.Errorf("sink: %w", err)
		}
		*emitted++
	}
	return nil
}

// runParallel fans the transform stage over a worker pool. The loaded maps
// are read-only by now, so workers share them without locking; only sink
// calls are serialized.
func (p *Pipeline) runParallel(
	ctx context.Context,
	messages []imessage.MessageRow,
	chats map[int64][]imessage.ChatParticipant,
	attachments map[int64][]imessage.AttachmentRow,
	me transform.Me,
	sink Sink,
	log *logrus.Entry,
	emitted, skipped *int64,
) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan imessage.MessageRow)
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		sinkMu   sync.Mutex
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				event, err := p.transformOne(msg, chats[msg.ChatID], attachments[msg.RowID], me)
				if err != nil {
					if p.skippable(err, log) {
						atomic.AddInt64(skipped, 1)
						continue
					}
					fail(err)
					return
				}
				sinkMu.Lock()
				err = sink(event)
				sinkMu.Unlock()
				if err != nil {
					fail(fmt.Errorf("sink: %w", err))
					return
				}
				atomic.AddInt64(emitted, 1)
			}
		}()
	}

feed:
	for _, msg := range messages {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- msg:
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (p *Pipeline) transformOne(
	msg imessage.MessageRow,
	participants []imessage.ChatParticipant,
	atts []imessage.AttachmentRow,
	me transform.Me,
) (*transform.Event, error) {
	actors, err := transform.ResolveActors(msg, participants, me)
	if err != nil {
		var identErr *transform.MissingIdentityError
		if errors.As(err, &identErr) {
			// Name the triggering message so the operator can diagnose
			// which namespace the configuration is missing for.
			return nil, fmt.Errorf("message %s: %w", msg.GUID, err)
		}
		return nil, err
	}
	return p.normalizer.Event(msg, actors, atts), nil
}

// skippable reports whether err may be logged and skipped under lenient mode.
// Only unresolvable senders qualify; a missing operator identity is a
// configuration problem that recurs on every message in that namespace.
func (p *Pipeline) skippable(err error, log *logrus.Entry) bool {
	if !p.opts.Lenient {
		return false
	}
	var agentErr *transform.MissingAgentError
	if !errors.As(err, &agentErr) {
		return false
	}
	log.WithFields(logrus.Fields{
		"guid":   agentErr.MessageGUID,
		"handle": agentErr.Handle,
	}).Warn("skipping message without resolvable sender")
	return true
}
