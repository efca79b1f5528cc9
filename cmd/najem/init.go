package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/najem/internal/config"
	"github.com/erazemk/najem/internal/db"
	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/rental"
	"github.com/erazemk/najem/internal/store"
)

// initResult describes what a first run created.
type initResult struct {
	Username string
	Password string
	Address  model.Address
	Owner    model.Address

	// Set when the lock went to a separate owner account.
	OwnerUsername string
	OwnerPassword string
}

// initDatabase creates a new database with an admin account whose address
// owns the lock. With cfg.Init.Owner set, an account is bound to that
// address and ownership is transferred to it, so the address is never
// left for someone else to claim. The file is removed again if any step
// fails.
func initDatabase(cfg *config.Config) (*initResult, error) {
	path := cfg.Database.Path
	res, err := createDatabase(cfg)
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	return res, nil
}

func createDatabase(cfg *config.Config) (*initResult, error) {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return nil, fmt.Errorf("generating password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	address, err := model.NewAddress()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if _, err := store.CreateUser(ctx, database, cfg.Init.AdminUser, string(hash), address); err != nil {
		return nil, fmt.Errorf("creating admin user: %w", err)
	}
	if _, err := store.InitLock(ctx, database, address); err != nil {
		return nil, err
	}

	res := &initResult{Username: cfg.Init.AdminUser, Password: password, Address: address, Owner: address}

	owner, err := cfg.InitialOwner()
	if err != nil {
		return nil, err
	}
	if owner != "" && owner != address {
		ownerPassword, err := generatePassword(16)
		if err != nil {
			return nil, fmt.Errorf("generating password: %w", err)
		}
		ownerHash, err := bcrypt.GenerateFromPassword([]byte(ownerPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		if _, err := store.CreateUser(ctx, database, cfg.Init.OwnerUser, string(ownerHash), owner); err != nil {
			return nil, fmt.Errorf("creating owner user: %w", err)
		}

		_, _, err = store.ApplyLockOp(ctx, database, cfg.Policy(), func(m *rental.Machine) (*model.Event, error) {
			return m.TransferOwnership(address, owner, time.Now())
		})
		if err != nil {
			return nil, fmt.Errorf("transferring ownership: %w", err)
		}
		res.Owner = owner
		res.OwnerUsername = cfg.Init.OwnerUser
		res.OwnerPassword = ownerPassword
	}

	return res, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath string, res *initResult) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", res.Username)
	fmt.Printf("  Password: %s\n", res.Password)
	fmt.Printf("  Address:  %s\n", res.Address)
	fmt.Println()
	if res.OwnerUsername != "" {
		fmt.Println("Owner account created:")
		fmt.Printf("  Username: %s\n", res.OwnerUsername)
		fmt.Printf("  Password: %s\n", res.OwnerPassword)
		fmt.Printf("  Address:  %s\n", res.Owner)
		fmt.Println()
	}
	fmt.Printf("Lock owner: %s\n", res.Owner)
	fmt.Println()
	fmt.Println("Save this password. It cannot be recovered.")
	fmt.Println("The admin can change it after logging in.")
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
