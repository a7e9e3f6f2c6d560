// internal/storage/gormdb/gormdb.go
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
	"github.com/rovshanmuradov/solana-copybot/internal/storage"
	"github.com/rovshanmuradov/solana-copybot/internal/storage/models"
)

// migrationLockID guards AutoMigrate when several instances share a database.
const migrationLockID = 101

// Store implements storage.Storage on gorm.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Storage = (*Store)(nil)

// Open connects to postgres for postgres:// DSNs and to sqlite for
// sqlite://<path> (":memory:" works for tests).
func Open(dsn string, zapLogger *zap.Logger) (*Store, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// sqlite serialises writers; one connection also keeps :memory: databases alive.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return &Store{db: db, logger: zapLogger.Named("storage")}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	default:
		return nil, fmt.Errorf("unsupported database dsn %q", dsn)
	}
}

// RunMigrations creates or updates the schema.
func (s *Store) RunMigrations() error {
	if s.db.Dialector.Name() == "postgres" {
		var lockObtained bool
		if err := s.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return errors.New("another migration is in progress")
		}
		defer s.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	if err := s.db.AutoMigrate(
		&models.Wallet{},
		&models.CopySettings{},
		&models.Position{},
		&models.TradeResult{},
		&models.LimitOrder{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.logger.Info("✅ Database schema up to date", zap.String("dialect", s.db.Dialector.Name()))
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveWallet(ctx context.Context, w domain.TrackedWallet) error {
	m := walletToModel(w)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "enabled", "size_param", "min_trade_sol", "max_trade_sol", "direction", "alert_on_buy", "alert_on_sell", "updated_at"}),
	}).Create(&m).Error
}

func (s *Store) DeleteWallet(ctx context.Context, address string) error {
	res := s.db.WithContext(ctx).Where("address = ?", address).Delete(&models.Wallet{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (s *Store) ListWallets(ctx context.Context) ([]domain.TrackedWallet, error) {
	var rows []models.Wallet
	if err := s.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TrackedWallet, 0, len(rows))
	for _, r := range rows {
		out = append(out, walletFromModel(r))
	}
	return out, nil
}

func (s *Store) UpdateCursor(ctx context.Context, address string, c domain.Cursor) error {
	return s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("address = ?", address).
		Updates(map[string]interface{}{
			"cursor_sig":  c.Signature,
			"cursor_slot": c.Slot,
		}).Error
}

func (s *Store) LoadSettings(ctx context.Context) (domain.CopySettings, error) {
	var m models.CopySettings
	err := s.db.WithContext(ctx).Where("scope_key = ?", models.SettingsKeyGlobal).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CopySettings{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CopySettings{}, err
	}
	return settingsFromModel(m), nil
}

func (s *Store) SaveSettings(ctx context.Context, cs domain.CopySettings) error {
	m := settingsToModel(cs)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_key"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) SavePosition(ctx context.Context, p domain.Position) error {
	m := positionToModel(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "position_id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	var m models.Position
	err := s.db.WithContext(ctx).Where("position_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	if err != nil {
		return domain.Position{}, err
	}
	return positionFromModel(m), nil
}

func (s *Store) ListPositions(ctx context.Context, filter storage.PositionFilter) ([]domain.Position, error) {
	q := s.db.WithContext(ctx).Order("opened_at asc")
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, st := range filter.Status {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}

	var rows []models.Position
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, positionFromModel(r))
	}
	return out, nil
}

func (s *Store) SaveTradeResult(ctx context.Context, r domain.TradeResult) error {
	m := resultToModel(r)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "result_id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) GetTradeResult(ctx context.Context, id string) (domain.TradeResult, error) {
	var m models.TradeResult
	err := s.db.WithContext(ctx).Where("result_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TradeResult{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TradeResult{}, err
	}
	return resultFromModel(m), nil
}

func (s *Store) ListTradeResults(ctx context.Context, filter storage.ResultFilter) ([]domain.TradeResult, error) {
	q := s.db.WithContext(ctx).Order("submitted_at asc").Order("id asc")
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.PositionID != "" {
		q = q.Where("position_id = ?", filter.PositionID)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.TradeResult
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.TradeResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, resultFromModel(r))
	}
	return out, nil
}

func (s *Store) SaveLimitOrder(ctx context.Context, o domain.LimitOrder) error {
	m := limitToModel(o)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(&m).Error
}

func (s *Store) GetLimitOrder(ctx context.Context, id string) (domain.LimitOrder, error) {
	var m models.LimitOrder
	err := s.db.WithContext(ctx).Where("order_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.LimitOrder{}, domain.ErrLimitNotFound
	}
	if err != nil {
		return domain.LimitOrder{}, err
	}
	return limitFromModel(m), nil
}

func (s *Store) ListLimitOrders(ctx context.Context, filter storage.LimitFilter) ([]domain.LimitOrder, error) {
	q := s.db.WithContext(ctx).Order("opened_at asc").Order("order_id asc")
	if filter.Token != "" {
		q = q.Where("token = ?", filter.Token)
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, st := range filter.Status {
			statuses = append(statuses, string(st))
		}
		q = q.Where("status IN ?", statuses)
	}

	var rows []models.LimitOrder
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.LimitOrder, 0, len(rows))
	for _, r := range rows {
		out = append(out, limitFromModel(r))
	}
	return out, nil
}
