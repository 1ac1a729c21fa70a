package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/vmanoilov/bettergpt/pkg/conversation"
	"github.com/vmanoilov/bettergpt/pkg/links"
)

// SQLiteStore persists conversations, context configs and links in a single
// SQLite database. It implements both conversation.Store and
// links.Repository; the schema is created on open.
//
// Message lists and link metadata are stored as JSON columns. Everything this
// subsystem queries by is a dedicated column with an index.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ conversation.Store = (*SQLiteStore)(nil)
	_ links.Repository   = (*LinkRepository)(nil)
)

// LinkRepository is the links.Repository view over a SQLiteStore.
type LinkRepository struct {
	store *SQLiteStore
}

// Links returns the repository view sharing this store's database.
func (s *SQLiteStore) Links() *LinkRepository {
	return &LinkRepository{store: s}
}

func (r *LinkRepository) Save(ctx context.Context, link *links.ConversationLink) error {
	return r.store.SaveLink(ctx, link)
}

func (r *LinkRepository) Get(ctx context.Context, id conversation.LinkID) (*links.ConversationLink, error) {
	return r.store.GetLink(ctx, id)
}

func (r *LinkRepository) Delete(ctx context.Context, id conversation.LinkID) error {
	return r.store.DeleteLink(ctx, id)
}

func (r *LinkRepository) ForConversation(ctx context.Context, id conversation.ConversationID) (links.LinkSet, error) {
	return r.store.LinksForConversation(ctx, id)
}

func (r *LinkRepository) DeleteForConversation(ctx context.Context, id conversation.ConversationID) error {
	return r.store.DeleteLinksForConversation(ctx, id)
}

func (r *LinkRepository) All(ctx context.Context) ([]*links.ConversationLink, error) {
	return r.store.AllLinks(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	model TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	folder_id TEXT NOT NULL DEFAULT '',
	is_archived INTEGER NOT NULL DEFAULT 0,
	is_favorite INTEGER NOT NULL DEFAULT 0,
	messages TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS context_configs (
	conversation_id TEXT PRIMARY KEY,
	included_links TEXT NOT NULL DEFAULT '[]',
	auto_load_parent INTEGER NOT NULL DEFAULT 1,
	auto_load_links INTEGER NOT NULL DEFAULT 0,
	max_tokens INTEGER NOT NULL DEFAULT 0,
	strategy TEXT NOT NULL DEFAULT 'balanced'
);

CREATE TABLE IF NOT EXISTS conversation_links (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	type TEXT NOT NULL,
	message_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_links_source ON conversation_links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON conversation_links(target_id);
`

// OpenSQLite opens (creating if necessary) a SQLite-backed store at the given
// path. Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, conversation.WrapStorage("open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, conversation.WrapStorage("create schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id conversation.ConversationID) (*conversation.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, model, created_at, updated_at, folder_id, is_archived, is_favorite, messages
		FROM conversations WHERE id = ?`, id.String())

	conv, err := scanConversation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(conversation.ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return nil, conversation.WrapStorage("get conversation", err)
	}
	return conv, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter conversation.Filter) ([]*conversation.Conversation, error) {
	query := `
		SELECT id, title, model, created_at, updated_at, folder_id, is_archived, is_favorite, messages
		FROM conversations`
	if !filter.IncludeArchived {
		query += ` WHERE is_archived = 0`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, conversation.WrapStorage("list conversations", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*conversation.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows.Scan)
		if err != nil {
			return nil, conversation.WrapStorage("scan conversation", err)
		}
		ret = append(ret, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, conversation.WrapStorage("list conversations", err)
	}
	return ret, nil
}

func (s *SQLiteStore) Save(ctx context.Context, conv *conversation.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return errors.Wrap(err, "marshaling messages")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, updated_at, folder_id, is_archived, is_favorite, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at,
			folder_id = excluded.folder_id,
			is_archived = excluded.is_archived,
			is_favorite = excluded.is_favorite,
			messages = excluded.messages`,
		conv.ID.String(), conv.Title, conv.Model,
		conv.CreatedAt.UnixMilli(), conv.UpdatedAt.UnixMilli(),
		conv.FolderID, boolToInt(conv.IsArchived), boolToInt(conv.IsFavorite),
		string(messages))
	return conversation.WrapStorage("save conversation", err)
}

func (s *SQLiteStore) Delete(ctx context.Context, id conversation.ConversationID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ?`, id.String())
	return conversation.WrapStorage("delete conversation", err)
}

func (s *SQLiteStore) GetContextConfig(ctx context.Context, id conversation.ConversationID) (*conversation.ContextConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, included_links, auto_load_parent, auto_load_links, max_tokens, strategy
		FROM context_configs WHERE conversation_id = ?`, id.String())

	var (
		cfg           conversation.ContextConfig
		convID        string
		includedLinks string
		autoParent    int
		autoLinks     int
		strategy      string
	)
	err := row.Scan(&convID, &includedLinks, &autoParent, &autoLinks, &cfg.MaxTokens, &strategy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(conversation.ErrNotFound, "context config for %s", id)
	}
	if err != nil {
		return nil, conversation.WrapStorage("get context config", err)
	}

	cfg.ConversationID = conversation.ConversationID(convID)
	cfg.AutoLoadParent = autoParent != 0
	cfg.AutoLoadLinks = autoLinks != 0
	cfg.Strategy, err = conversation.ParseTruncationStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(includedLinks), &cfg.IncludedLinks); err != nil {
		return nil, conversation.WrapStorage("decode included links", err)
	}
	return &cfg, nil
}

func (s *SQLiteStore) SaveContextConfig(ctx context.Context, cfg *conversation.ContextConfig) error {
	includedLinks, err := json.Marshal(cfg.IncludedLinks)
	if err != nil {
		return errors.Wrap(err, "marshaling included links")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_configs (conversation_id, included_links, auto_load_parent, auto_load_links, max_tokens, strategy)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			included_links = excluded.included_links,
			auto_load_parent = excluded.auto_load_parent,
			auto_load_links = excluded.auto_load_links,
			max_tokens = excluded.max_tokens,
			strategy = excluded.strategy`,
		cfg.ConversationID.String(), string(includedLinks),
		boolToInt(cfg.AutoLoadParent), boolToInt(cfg.AutoLoadLinks),
		cfg.MaxTokens, string(cfg.Strategy))
	return conversation.WrapStorage("save context config", err)
}

func (s *SQLiteStore) DeleteContextConfig(ctx context.Context, id conversation.ConversationID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM context_configs WHERE conversation_id = ?`, id.String())
	return conversation.WrapStorage("delete context config", err)
}

// Link repository operations. The Store/Repository contracts share method
// names (Save, Get, Delete), so the links.Repository view is exposed through
// the LinkRepository adapter returned by Links().

func (s *SQLiteStore) SaveLink(ctx context.Context, link *links.ConversationLink) error {
	if _, err := links.ParseLinkType(string(link.Type)); err != nil {
		return err
	}
	metadata, err := json.Marshal(link.Metadata)
	if err != nil {
		return errors.Wrap(err, "marshaling link metadata")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_links (id, source_id, target_id, type, message_id, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source_id = excluded.source_id,
			target_id = excluded.target_id,
			type = excluded.type,
			message_id = excluded.message_id,
			metadata = excluded.metadata`,
		link.ID.String(), link.SourceID.String(), link.TargetID.String(),
		string(link.Type), link.MessageID.String(),
		link.CreatedAt.UnixMilli(), string(metadata))
	return conversation.WrapStorage("save link", err)
}

func (s *SQLiteStore) GetLink(ctx context.Context, id conversation.LinkID) (*links.ConversationLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, target_id, type, message_id, created_at, metadata
		FROM conversation_links WHERE id = ?`, id.String())

	link, err := scanLink(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(conversation.ErrNotFound, "link %s", id)
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (s *SQLiteStore) DeleteLink(ctx context.Context, id conversation.LinkID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_links WHERE id = ?`, id.String())
	return conversation.WrapStorage("delete link", err)
}

func (s *SQLiteStore) LinksForConversation(ctx context.Context, id conversation.ConversationID) (links.LinkSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, message_id, created_at, metadata
		FROM conversation_links
		WHERE source_id = ? OR target_id = ?
		ORDER BY created_at, id`, id.String(), id.String())
	if err != nil {
		return links.LinkSet{}, conversation.WrapStorage("query links", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var set links.LinkSet
	for rows.Next() {
		link, err := scanLink(rows.Scan)
		if err != nil {
			if errors.Is(err, links.ErrUnknownLinkType) {
				// Corrupt row; bulk reads tolerate it so that one bad record
				// cannot take down graph building or context loading.
				log.Warn().Err(err).Msg("skipping link with unknown type")
				continue
			}
			return links.LinkSet{}, err
		}
		if link.SourceID == id {
			set.Outgoing = append(set.Outgoing, link)
		} else {
			set.Incoming = append(set.Incoming, link)
		}
	}
	if err := rows.Err(); err != nil {
		return links.LinkSet{}, conversation.WrapStorage("query links", err)
	}
	return set, nil
}

func (s *SQLiteStore) DeleteLinksForConversation(ctx context.Context, id conversation.ConversationID) error {
	// Single statement, so a concurrent reader sees either all of the
	// conversation's links or none of them.
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_links WHERE source_id = ? OR target_id = ?`,
		id.String(), id.String())
	return conversation.WrapStorage("delete links", err)
}

func (s *SQLiteStore) AllLinks(ctx context.Context) ([]*links.ConversationLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, message_id, created_at, metadata
		FROM conversation_links ORDER BY created_at, id`)
	if err != nil {
		return nil, conversation.WrapStorage("query links", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []*links.ConversationLink
	for rows.Next() {
		link, err := scanLink(rows.Scan)
		if err != nil {
			if errors.Is(err, links.ErrUnknownLinkType) {
				log.Warn().Err(err).Msg("skipping link with unknown type")
				continue
			}
			return nil, err
		}
		ret = append(ret, link)
	}
	if err := rows.Err(); err != nil {
		return nil, conversation.WrapStorage("query links", err)
	}
	return ret, nil
}

func scanConversation(scan func(...any) error) (*conversation.Conversation, error) {
	var (
		conv      conversation.Conversation
		id        string
		createdAt int64
		updatedAt int64
		archived  int
		favorite  int
		messages  string
	)
	err := scan(&id, &conv.Title, &conv.Model, &createdAt, &updatedAt,
		&conv.FolderID, &archived, &favorite, &messages)
	if err != nil {
		return nil, err
	}

	conv.ID = conversation.ConversationID(id)
	conv.CreatedAt = time.UnixMilli(createdAt)
	conv.UpdatedAt = time.UnixMilli(updatedAt)
	conv.IsArchived = archived != 0
	conv.IsFavorite = favorite != 0
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return nil, errors.Wrap(err, "decoding messages")
	}
	return &conv, nil
}

func scanLink(scan func(...any) error) (*links.ConversationLink, error) {
	var (
		link      links.ConversationLink
		id        string
		sourceID  string
		targetID  string
		linkType  string
		messageID string
		createdAt int64
		metadata  string
	)
	err := scan(&id, &sourceID, &targetID, &linkType, &messageID, &createdAt, &metadata)
	if err != nil {
		return nil, err
	}

	parsed, err := links.ParseLinkType(linkType)
	if err != nil {
		// Quarantine, do not coerce: the caller decides whether to skip.
		return nil, errors.Wrapf(err, "link %s", id)
	}

	link.ID = conversation.LinkID(id)
	link.SourceID = conversation.ConversationID(sourceID)
	link.TargetID = conversation.ConversationID(targetID)
	link.Type = parsed
	link.MessageID = conversation.MessageID(messageID)
	link.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(metadata), &link.Metadata); err != nil {
		return nil, errors.Wrap(err, "decoding link metadata")
	}
	return &link, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
