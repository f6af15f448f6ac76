// Command signurl mints and checks signed file URLs with the gateway's
// signing secret, for support staff who need to hand out a download link.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hireloop/ats-gateway/internal/config"
	"github.com/hireloop/ats-gateway/internal/signedurl"
	"github.com/hireloop/ats-gateway/internal/storage"
	"github.com/hireloop/ats-gateway/pkg/logger"
)

const signedPath = "/files-signed"

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if err := run(os.Args[1:], cfg.Files.SigningSecret, cfg.Files.MaxTTL, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "signurl:", err)
		os.Exit(1)
	}
}

func run(args []string, secret string, maxTTL time.Duration, out io.Writer) error {
	fs := flag.NewFlagSet("signurl", flag.ContinueOnError)
	fs.SetOutput(out)
	key := fs.String("key", "", "store key to sign, e.g. ats/applications/42/cv.pdf")
	ttl := fs.Duration("ttl", 15*time.Minute, "validity of the signed URL")
	base := fs.String("base", "", "public origin prepended to the URL, e.g. https://ats.example.com")
	check := fs.String("verify", "", "signed URL to check instead of signing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	codec, err := signedurl.New(secret)
	if err != nil {
		return fmt.Errorf("%w (set FILE_SIGNING_SECRET)", err)
	}

	if *check != "" {
		u, err := url.Parse(*check)
		if err != nil {
			return fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		if !codec.Verify(q.Get("key"), q.Get("exp"), q.Get("sig")) {
			return errors.New("signature invalid or expired")
		}
		fmt.Fprintln(out, "valid")
		return nil
	}

	if *key == "" {
		return errors.New("-key is required")
	}
	if _, err := storage.CleanKey(*key); err != nil {
		return fmt.Errorf("key %q: %w", *key, err)
	}
	if maxTTL > 0 && *ttl > maxTTL {
		*ttl = maxTTL
	}
	tok := codec.Sign(*key, *ttl)
	fmt.Fprintln(out, strings.TrimRight(*base, "/")+tok.URL(signedPath))
	return nil
}
