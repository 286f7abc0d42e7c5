package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hsmtrust/internal/domain"
	"hsmtrust/internal/infra/cesr"
	"hsmtrust/internal/infra/redisstore"
	"hsmtrust/internal/usecase"
	"hsmtrust/pkg/keylog"
)

const (
	currentKeyFile = "current.pem"
	nextKeyFile    = "next.pem"
	headFile       = "head.json"
)

func runChainInit(args []string) int {
	fs := flag.NewFlagSet("chain init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stateDir, redisAddr, purpose string
	var redisDB int
	fs.StringVar(&stateDir, "state-dir", "", "directory for chain key state")
	fs.StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	fs.IntVar(&redisDB, "redis-db", 0, "redis database holding the key log")
	fs.StringVar(&purpose, "purpose", usecase.PurposeKeyAuthorization, "declared record purpose")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if stateDir == "" {
		fmt.Fprintln(os.Stderr, "chain init requires --state-dir")
		return 1
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "create state dir: %v\n", err)
		return 1
	}
	if _, err := os.Stat(filepath.Join(stateDir, headFile)); err == nil {
		fmt.Fprintln(os.Stderr, "chain already initialized; use chain rotate")
		return 1
	}

	current, err := cesr.NewSecp256r1Signer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}
	next, err := cesr.NewSecp256r1Signer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}

	record, err := keylog.Genesis(current, next.Public(), purpose, time.Now(), cesr.NewBlake3Hasher())
	if err != nil {
		fmt.Fprintf(os.Stderr, "author genesis record: %v\n", err)
		return 1
	}

	if err := writeChainState(stateDir, current, next, record.Raw); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if err := publishRecord(redisAddr, redisDB, record); err != nil {
		fmt.Fprintf(os.Stderr, "publish record: %v\n", err)
		return 1
	}

	fmt.Printf("chain initialized\nprefix: %s\ngeneration: %s\n", record.Entry.Payload.Prefix, record.Entry.Payload.ID)
	return 0
}

func runChainRotate(args []string) int {
	fs := flag.NewFlagSet("chain rotate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stateDir, redisAddr string
	var redisDB int
	fs.StringVar(&stateDir, "state-dir", "", "directory for chain key state")
	fs.StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	fs.IntVar(&redisDB, "redis-db", 0, "redis database holding the key log")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if stateDir == "" {
		fmt.Fprintln(os.Stderr, "chain rotate requires --state-dir")
		return 1
	}

	head, err := readHead(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	// The key pre-committed by the head record becomes the signer.
	current, err := readSigner(filepath.Join(stateDir, nextKeyFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	next, err := cesr.NewSecp256r1Signer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		return 1
	}

	record, err := keylog.Rotate(head.Payload, current, next.Public(), time.Now(), cesr.NewBlake3Hasher())
	if err != nil {
		fmt.Fprintf(os.Stderr, "author rotation record: %v\n", err)
		return 1
	}

	if err := writeChainState(stateDir, current, next, record.Raw); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	if err := publishRecord(redisAddr, redisDB, record); err != nil {
		fmt.Fprintf(os.Stderr, "publish record: %v\n", err)
		return 1
	}

	fmt.Printf("chain rotated\nsequence: %d\ngeneration: %s\n", record.Entry.Payload.SequenceNumber, record.Entry.Payload.ID)
	return 0
}

func writeChainState(stateDir string, current, next *cesr.Secp256r1Signer, rawRecord string) error {
	currentPEM, err := current.MarshalPEM()
	if err != nil {
		return err
	}
	nextPEM, err := next.MarshalPEM()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(stateDir, currentKeyFile), currentPEM, 0o600); err != nil {
		return fmt.Errorf("write current key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, nextKeyFile), nextPEM, 0o600); err != nil {
		return fmt.Errorf("write next key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, headFile), []byte(rawRecord), 0o600); err != nil {
		return fmt.Errorf("write head record: %w", err)
	}
	return nil
}

func readHead(stateDir string) (*domain.SignedLogEntry, error) {
	raw, err := os.ReadFile(filepath.Join(stateDir, headFile))
	if err != nil {
		return nil, fmt.Errorf("read head record: %w", err)
	}
	record, _, err := domain.ParseSignedRecord(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse head record: %w", err)
	}
	return record, nil
}

func readSigner(path string) (*cesr.Secp256r1Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w", path, err)
	}
	signer, err := cesr.ParseSignerPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", path, err)
	}
	return signer, nil
}

func publishRecord(redisAddr string, redisDB int, record keylog.Record) error {
	store := redisstore.NewRecordStore(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return store.Publish(ctx, record.Entry.Payload.ID, record.Raw)
}
