package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	goahttp "goa.design/goa/v3/http"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/services"
	"lmsinquiry/pkg/inquiry"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:8000", "base URL of the running API")
		username = flag.String("username", "", "staff username (defaults to ADMIN_USERNAME)")
		password = flag.String("password", "", "staff password (defaults to ADMIN_PASSWORD)")
		email    = flag.String("email", "", "email for the test inquiry (defaults to a unique address)")
		timeout  = flag.Duration("timeout", 30*time.Second, "overall timeout")
		printEnv = flag.Bool("print-env", false, "print the effective configuration and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Logger.Fatalf("Failed to load config: %v", err)
	}
	logging.Init("SMOKETEST", cfg.App.LogLevel, os.Stderr)
	logger := logging.For("smoketest")

	if *printEnv {
		for _, kv := range cfg.Masked() {
			fmt.Printf("%s=%s\n", kv[0], kv[1])
		}
		return
	}

	if *username == "" {
		*username = cfg.Admin.Username
	}
	if *password == "" {
		*password = cfg.Admin.Password
	}
	if *email == "" {
		*email = fmt.Sprintf("smoketest+%d@example.com", time.Now().Unix())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := &apiClient{baseURL: *baseURL, doer: &http.Client{Timeout: *timeout}}
	if err := run(ctx, c, *username, *password, *email); err != nil {
		logger.WithError(err).Error("Smoke test failed")
		os.Exit(1)
	}
	logger.Info("Smoke test passed")
}

func run(ctx context.Context, c *apiClient, username, password, email string) error {
	logger := logging.For("smoketest")

	var health services.HealthResult
	if err := c.call(ctx, "GET", "/health", nil, &health); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	logger.Infof("Health: status=%s, database=%s", health.Status, health.Database)

	var login services.LoginResult
	if err := c.call(ctx, "POST", "/api/auth/login", &services.LoginPayload{Username: username, Password: password}, &login); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = login.AccessToken
	logger.Infof("Logged in as %s", username)

	var notice inquiry.Notice
	form := inquiry.NewForm(
		inquiry.NewClient(c.baseURL, c.doer),
		inquiry.WithNotifier(func(n inquiry.Notice) { notice = n }),
	)
	defer form.Close()
	form.Set(inquiry.FieldName, "Smoke Test")
	form.Set(inquiry.FieldEmail, email)
	form.Set(inquiry.FieldPhone, "+1 555 010 0000")
	form.Set(inquiry.FieldQuery, "Automated smoke test inquiry.")
	if err := form.Submit(ctx); err != nil {
		return fmt.Errorf("submit inquiry: %w (notice: %q)", err, notice.Message)
	}
	logger.Infof("Submitted inquiry: %s", notice.Message)

	var inquiries []services.InquiryResult
	if err := c.call(ctx, "GET", "/api/inquiries?limit=5", nil, &inquiries); err != nil {
		return fmt.Errorf("list inquiries: %w", err)
	}
	for _, inq := range inquiries {
		if inq.Email == email {
			logger.Infof("Found submitted inquiry id=%d status=%s", inq.ID, inq.Status)
			return nil
		}
	}
	return fmt.Errorf("submitted inquiry from %s not found in latest %d", email, len(inquiries))
}

// apiClient is a thin JSON client for the staff endpoints.
type apiClient struct {
	baseURL string
	token   string
	doer    goahttp.Doer
}

func (c *apiClient) call(ctx context.Context, method, path string, body, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return err
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e inquiry.ErrorResponse
		if err := goahttp.ResponseDecoder(resp).Decode(&e); err == nil && e.Message != nil {
			return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, *e.Message)
		}
		return fmt.Errorf("%s %s: %d", method, path, resp.StatusCode)
	}
	return goahttp.ResponseDecoder(resp).Decode(out)
}
