package cmd

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mreed/kybgate/webhook"
)

var (
	sendTarget     string
	sendKeyPath    string
	sendEventType  string
	sendOwnerEmail string
	sendStatus     string
)

// sendCmd posts a synthetic signed webhook to a running instance. It
// pairs with a locally generated keypair whose public half the server
// was started with, so the full verify-and-ingest path can be exercised
// without provider traffic.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a signed test webhook to a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := loadPrivateKey(sendKeyPath)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]any{
			"event_id":   "evt_" + uuid.NewString(),
			"event_type": sendEventType,
			"event_object": map[string]any{
				"email":      sendOwnerEmail,
				"kyc_status": sendStatus,
			},
		})
		if err != nil {
			return err
		}

		sig, err := webhook.Sign(payload, key, time.Now())
		if err != nil {
			return err
		}

		req, err := http.NewRequest(http.MethodPost, sendTarget, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(webhook.SignatureHeader, sig)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("posting webhook: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		fmt.Printf("%s\n%s\n", resp.Status, body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server rejected webhook: %s", resp.Status)
		}
		return nil
	},
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block in private key file")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return key, nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendTarget, "target", "http://localhost:8080/api/v1/webhooks/bridge", "Webhook endpoint URL")
	sendCmd.Flags().StringVar(&sendKeyPath, "key", "webhook.key", "Path to RSA private key PEM")
	sendCmd.Flags().StringVar(&sendEventType, "event-type", "kyc_link.updated.status_transitioned", "Event type to send")
	sendCmd.Flags().StringVar(&sendOwnerEmail, "email", "owner@example.com", "Owner email embedded in the payload")
	sendCmd.Flags().StringVar(&sendStatus, "status", "under_review", "Status carried in the event object")
}
