package config

import (
	"encoding/base64"
	"fmt"
)

// ClientConfig configures the chat client core: where the messaging
// server lives and the session token identifying the local user.
type ClientConfig struct {
	ServerURL    string
	SessionToken string
	SigningKey   []byte
}

func NewClientConfig(serverURL, sessionToken, base64Secret string) (*ClientConfig, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}
	if sessionToken == "" {
		return nil, fmt.Errorf("session token cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &ClientConfig{
		ServerURL:    serverURL,
		SessionToken: sessionToken,
		SigningKey:   signingKey,
	}, nil
}

// ServerConfig configures the reference chat server.
type ServerConfig struct {
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	UploadDir      string
}

func NewServerConfig(serverAddr, base64Secret string, allowedOrigins []string, uploadDir string) (*ServerConfig, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &ServerConfig{
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		UploadDir:      uploadDir,
	}, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}
