package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hsmtrust/internal/infra/cesr"
	"hsmtrust/internal/infra/redisstore"
	"hsmtrust/internal/usecase"
	"hsmtrust/pkg/keylog"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var identity, generationID, signature, message, messageFile, redisAddr string
	var redisDB int
	fs.StringVar(&identity, "identity", "", "hsm identity (chain prefix)")
	fs.StringVar(&generationID, "generation-id", "", "key generation id")
	fs.StringVar(&signature, "signature", "", "detached cesr signature")
	fs.StringVar(&message, "message", "", "message text")
	fs.StringVar(&messageFile, "message-file", "", "path to message text")
	fs.StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	fs.IntVar(&redisDB, "redis-db", 0, "redis database holding the key log")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if identity == "" || generationID == "" || signature == "" {
		fmt.Fprintln(os.Stderr, "verify requires --identity, --generation-id and --signature")
		return 1
	}
	if message == "" && messageFile == "" {
		fmt.Fprintln(os.Stderr, "verify requires --message or --message-file")
		return 1
	}
	if messageFile != "" {
		data, err := os.ReadFile(messageFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read message: %v\n", err)
			return 1
		}
		message = string(data)
	}

	records := redisstore.NewRecordStore(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	defer records.Close()

	verifier := usecase.NewKeyLogVerifier(
		records,
		cesr.NewBlake3Hasher(),
		cesr.NewSecp256r1Verifier(),
		usecase.NewKeyCache(0, nil),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := verifier.Verify(ctx, signature, identity, generationID, message); err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		return 1
	}

	fmt.Println("verified")
	return 0
}

func runAuthorize(args []string) int {
	fs := flag.NewFlagSet("authorize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var stateDir, identity, publicKey, redisAddr string
	var redisDB int
	var ttl time.Duration
	fs.StringVar(&stateDir, "state-dir", "", "directory for chain key state")
	fs.StringVar(&identity, "identity", "", "identity to authorize a key for")
	fs.StringVar(&publicKey, "public-key", "", "cesr access public key")
	fs.DurationVar(&ttl, "ttl", 15*time.Minute, "authorization lifetime")
	fs.StringVar(&redisAddr, "redis", "localhost:6379", "redis address")
	fs.IntVar(&redisDB, "redis-db", 1, "redis database holding access authorizations")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if stateDir == "" || identity == "" || publicKey == "" {
		fmt.Fprintln(os.Stderr, "authorize requires --state-dir, --identity and --public-key")
		return 1
	}

	head, err := readHead(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	signer, err := readSigner(filepath.Join(stateDir, currentKeyFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	envelope, err := keylog.AuthorizeAccessKey(signer, head.Payload.Prefix, head.Payload.ID, publicKey, time.Now().Add(ttl))
	if err != nil {
		fmt.Fprintf(os.Stderr, "author authorization: %v\n", err)
		return 1
	}

	store := redisstore.NewAuthorizationStore(redisAddr, os.Getenv("REDIS_PASSWORD"), redisDB)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Publish(ctx, identity, envelope); err != nil {
		fmt.Fprintf(os.Stderr, "publish authorization: %v\n", err)
		return 1
	}

	fmt.Printf("authorized %s until %s\n", identity, time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return 0
}
