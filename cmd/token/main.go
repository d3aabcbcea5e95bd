// Command token mints a bearer JWT for the protected API routes.
package main

import (
	"fmt"
	stdlog "log"
	"os"
	"time"

	"github.com/seanblong/knowledgebase/internal/auth"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("knowledgebase-token", pflag.ExitOnError)
	secret := fs.String("secret", os.Getenv("KB_AUTH_JWT_SECRET"), "JWT signing secret (defaults to KB_AUTH_JWT_SECRET)")
	subject := fs.String("subject", "", "Token subject")
	name := fs.String("name", "", "Display name claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(os.Args[1:]); err != nil {
		stdlog.Fatal(err)
	}

	token, err := auth.New(*secret, true).GenerateJWT(*subject, *name, *ttl)
	if err != nil {
		stdlog.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
