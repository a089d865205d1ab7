package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudvault/vaultd/backup"
	"github.com/cloudvault/vaultd/quota"
	"github.com/cloudvault/vaultd/scheduler"
	"github.com/cloudvault/vaultd/searchindex"
	"github.com/cloudvault/vaultd/storageconfig"
	"github.com/cloudvault/vaultd/storageconfig/registry"
	"github.com/cloudvault/vaultd/vaultdb"
)

var (
	driverName          string
	dsn                 string
	encryptionSecretHex string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vaultctl",
	Short: "Operate the backup engine, storage-config service and quota guard",
	Long: `vaultctl is the operator CLI for the backup/restore engine,
storage-config service, quota guard and scheduler tick ledger. It opens
the same database the application server uses and drives the domain
services directly, without going through any HTTP layer.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main and only needs to happen
// once.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&driverName, "driver", "sqlite3", "database/sql driver name (sqlite3 or postgres)")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "vaultctl.db", "data source name passed to the driver")
	rootCmd.PersistentFlags().StringVar(&encryptionSecretHex, "encryption-secret", "", "32-byte ENCRYPTION_SECRET, hex-encoded")
}

// app bundles every domain service vaultctl's subcommands drive,
// wired against one opened vaultdb.DB.
type app struct {
	db  *vaultdb.DB
	log *zap.Logger

	backup    *backup.Service
	storage   *storageconfig.Service
	quota     *quota.Service
	scheduler *scheduler.Service
	searchIdx *searchindex.Coordinator
}

func newApp(ctx context.Context) (*app, error) {
	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := vaultdb.Open(ctx, log, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	secret, err := loadSecret()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	searchRepo := vaultdb.NewSearchIndexRepo(db)
	searchIdx := searchindex.NewCoordinator(searchRepo)

	backupSvc := backup.NewService(vaultdb.NewBackupRepo(db), db.Dialect, searchIdx, log)
	storageSvc := storageconfig.NewService(vaultdb.NewStorageConfigRepo(db), registry.NewDefault(), searchIdx, storageconfig.NewMemCache(), log, secret)
	quotaSvc := quota.NewService(vaultdb.NewQuotaRepo(db), log)
	schedulerSvc := scheduler.NewService(vaultdb.NewSchedulerRepo(db), log)

	return &app{
		db:        db,
		log:       log,
		backup:    backupSvc,
		storage:   storageSvc,
		quota:     quotaSvc,
		scheduler: schedulerSvc,
		searchIdx: searchIdx,
	}, nil
}

func (a *app) Close() {
	_ = a.log.Sync()
	_ = a.db.Close()
}

// loadSecret decodes --encryption-secret into the process-wide
// storageconfig.Secret. It falls back to the ENCRYPTION_SECRET
// environment variable so operators are not forced to pass it on the
// command line.
func loadSecret() (storageconfig.Secret, error) {
	var secret storageconfig.Secret
	raw := encryptionSecretHex
	if raw == "" {
		raw = os.Getenv("ENCRYPTION_SECRET")
	}
	if raw == "" {
		return secret, fmt.Errorf("ENCRYPTION_SECRET is required: pass --encryption-secret or set the environment variable")
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return secret, fmt.Errorf("decode ENCRYPTION_SECRET: %w", err)
	}
	if len(decoded) != len(secret) {
		return secret, fmt.Errorf("ENCRYPTION_SECRET must decode to %d bytes, got %d", len(secret), len(decoded))
	}
	copy(secret[:], decoded)
	return secret, nil
}
