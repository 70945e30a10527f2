// Package api is the client for the HTTP collaborators of the chat
// core: room listing and creation, the user directory and the file
// upload endpoint. All realtime traffic goes over the event transport
// instead.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/leoalsantos/custosmart-chat/internal/types"
)

const (
	defaultMaxUploadSize = 10 << 20 // 10 MiB
	defaultUploadTimeout = 120 * time.Second
)

type Client struct {
	log          *log.Logger
	baseURL      string
	httpClient   *http.Client
	sessionToken string

	// MaxUploadSize and UploadTimeout default to the wire contract's
	// 10 MiB / 120 s; tests shrink them.
	MaxUploadSize int64
	UploadTimeout time.Duration
}

func NewClient(l *log.Logger, baseURL, sessionToken string) *Client {
	return &Client{
		log:           l,
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{},
		sessionToken:  sessionToken,
		MaxUploadSize: defaultMaxUploadSize,
		UploadTimeout: defaultUploadTimeout,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	return req, nil
}

func (c *Client) doJson(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(resp),
		}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// serverMessage extracts a server-provided error message, falling back
// to the HTTP status text.
func serverMessage(resp *http.Response) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.ToLower(http.StatusText(resp.StatusCode))
}

func (c *Client) ListRooms(ctx context.Context) ([]types.ChatRoom, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/rooms", nil)
	if err != nil {
		return nil, err
	}

	var rooms []types.ChatRoom
	if err := c.doJson(req, &rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]types.ChatUser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/chat/users", nil)
	if err != nil {
		return nil, err
	}

	var users []types.ChatUser
	if err := c.doJson(req, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

type CreateRoomRequest struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Participants []int  `json:"participants"`
}

// CreateRoom issues the room-create call. The room type is derived from
// the participant count: more than one makes a group, otherwise a
// direct room.
func (c *Client) CreateRoom(ctx context.Context, name string, participants []int) (types.ChatRoom, error) {
	roomType := types.RoomTypeDirect
	if len(participants) > 1 {
		roomType = types.RoomTypeGroup
	}

	body, err := json.Marshal(CreateRoomRequest{
		Name:         name,
		Type:         roomType,
		Participants: participants,
	})
	if err != nil {
		return types.ChatRoom{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/rooms", bytes.NewReader(body))
	if err != nil {
		return types.ChatRoom{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var room types.ChatRoom
	if err := c.doJson(req, &room); err != nil {
		return types.ChatRoom{}, fmt.Errorf("create room: %w", err)
	}
	return room, nil
}

// File is an attachment handed to Upload. Size must be known up front
// so the gate runs before any bytes move.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type uploadResponse struct {
	FileUrl string `json:"fileUrl"`
	Message string `json:"message"`
}

// Upload sends the file out-of-band from the event transport and
// returns the server-assigned file URL. Violating the size limit fails
// fast with FileTooLargeError; the whole call is bound to the upload
// timeout.
func (c *Client) Upload(ctx context.Context, roomId int, file File) (string, error) {
	if file.Size > c.MaxUploadSize {
		return "", &FileTooLargeError{Size: file.Size, Max: c.MaxUploadSize}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file.Reader); err != nil {
		return "", fmt.Errorf("copy file: %w", err)
	}
	if err := mw.WriteField("roomId", strconv.Itoa(roomId)); err != nil {
		return "", fmt.Errorf("write roomId field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.UploadTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat/upload", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.log.Printf("uploading %q (%d bytes) to room %d", file.Name, file.Size, roomId)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrUploadTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrUploadNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{
			StatusCode: resp.StatusCode,
			Message:    serverMessage(resp),
		}
	}

	var upload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if upload.FileUrl == "" {
		return "", ErrInvalidResponse
	}

	return upload.FileUrl, nil
}
