package e2e

import (
	"chat-relay/domain/event"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

const readTimeout = 5 * time.Second

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR is not set")
	}
}

// Client is one websocket connection to the relay, logging every frame.
type Client struct {
	s    *BaseSuite
	t    *testing.T
	name string
	ws   *websocket.Conn
}

// Dial opens a websocket connection with a colorized header in the logs.
func (s *BaseSuite) Dial(name string) *Client {
	t := s.T()
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to relay at "+u.String())
	t.Cleanup(func() { _ = ws.Close() })
	return &Client{s: s, t: t, name: name, ws: ws}
}

// Username returns a fresh alphanumeric username so runs don't collide.
func Username(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func (c *Client) Send(t event.Type, data any) {
	raw, err := json.Marshal(data)
	c.s.Require().NoError(err)
	frame := event.Inbound{Type: t, Data: raw}
	if c.s.Config.DebugJSON {
		c.t.Logf("%s -> %s %s", c.name, t, raw)
	}
	c.s.Require().NoError(c.ws.WriteJSON(frame))
}

// Expect reads frames until one of the wanted type arrives and returns its data.
func (c *Client) Expect(want event.Type) json.RawMessage {
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		var frame event.Inbound
		err := c.ws.ReadJSON(&frame)
		c.s.Require().NoError(err, "%s waiting for %s", c.name, want)
		if c.s.Config.DebugJSON {
			c.t.Logf("%s <- %s %s", c.name, frame.Type, frame.Data)
		}
		if frame.Type == want {
			return frame.Data
		}
	}
}

// ExpectInto waits for a frame of type want and decodes its data into v.
func (c *Client) ExpectInto(want event.Type, v any) {
	c.s.Require().NoError(json.Unmarshal(c.Expect(want), v))
}
