// Package store persists the bot's authored posts and a small key/value
// config table, backed by gorm (sqlite or postgres).
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

// Post is one record the bot authored: a post, reply, or repost. Parent and
// Root link replies into locally-tracked threads; they reference other rows
// in this table, not remote records.
type Post struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Text      string
	Cid       string
	Uri       string `gorm:"index"`
	ParentID  *uint
	RootID    *uint
	RepostOf  string
}

// Config is a key/value row used by the authorization layer (eg, which
// telegram user is allowed to drive the bot).
type Config struct {
	Key   string `gorm:"primarykey"`
	Value string
}

type Store struct {
	db *gorm.DB
}

// Open connects to the database indicated by dburl (sqlite://path or
// postgresql://...) and runs migrations.
func Open(dburl string) (*Store, error) {
	var dial gorm.Dialector
	if strings.HasPrefix(dburl, "sqlite://") {
		sqliteSuffix := dburl[len("sqlite://"):]
		// ensure the parent directory exists when initializing a file db
		if !strings.Contains(sqliteSuffix, ":memory:") {
			os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm)
		}
		dial = sqlite.Open(sqliteSuffix)
	} else if strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://") {
		dial = postgres.Open(dburl)
	} else {
		return nil, fmt.Errorf("unsupported or unrecognized database URL scheme: %s", dburl)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Post{}, &Config{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// List returns up to limit posts, most recent id first.
func (s *Store) List(limit int) ([]Post, error) {
	var posts []Post
	if err := s.db.Order("id desc").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Store) Get(id uint) (*Post, error) {
	var post Post
	if err := s.db.First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// GetByUri returns the locally stored post matching an at:// URI, if the bot
// authored it.
func (s *Store) GetByUri(uri string) (*Post, error) {
	var post Post
	if err := s.db.Where("uri = ?", uri).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &post, nil
}

// Save inserts the post (assigning the next id) or updates it in place when
// the id is already set.
func (s *Store) Save(post *Post) error {
	return s.db.Save(post).Error
}

func (s *Store) Delete(id uint) error {
	res := s.db.Delete(&Post{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetConfig(key string) (string, error) {
	var cfg Config
	if err := s.db.First(&cfg, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return cfg.Value, nil
}

func (s *Store) SetConfig(key, value string) error {
	return s.db.Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&Config{Key: key, Value: value}).Error
}
