package main

import (
	"context"
	"fmt"
	"os"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/database"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("Failed to load config: %v", err)
	}
	logging.Init("CREATE_ADMIN", cfg.App.LogLevel, os.Stderr)

	if err := database.Init(&cfg.Database); err != nil {
		logging.Logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	authSvc := services.NewAuthService(database.GetDB(), &cfg.Auth)
	created, err := authSvc.EnsureAdmin(context.Background(), &cfg.Admin)
	if err != nil {
		logging.Logger.Fatalf("Failed to create admin user: %v", err)
	}

	if !created {
		fmt.Printf("User %q already exists!\n", cfg.Admin.Username)
		return
	}

	fmt.Println("Admin user created successfully!")
	fmt.Printf("Username: %s\n", cfg.Admin.Username)
	fmt.Printf("Email: %s\n", cfg.Admin.Email)
	if os.Getenv("ADMIN_PASSWORD") == "" {
		fmt.Printf("Password: %s\n", cfg.Admin.Password)
		fmt.Println("Please change the password after first login!")
	}
}
