// Command mint-token issues access tokens for operators and local testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/yieldvault-backend/pkg/auth"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "mint-token"})

	_ = godotenv.Load()

	identity := flag.String("identity", "", "identity id placed in the sub claim")
	role := flag.String("role", string(enums.RoleUser), "token role: user|admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	parsedRole, err := enums.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), auth.AccessTokenPayload{
		IdentityID: *identity,
		Role:       parsedRole,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
