package explorer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Arowolokehinde/CharmVault/types"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// trackBlocks subscribes to new blocks over the explorer's WebSocket feed
// and falls back to polling the REST tip endpoint when the connection cannot
// be established or drops.
func (e *explorerSvc) trackBlocks(ctx context.Context) {
	wsURL, err := deriveWsURL(e.baseUrl)
	if err != nil {
		log.WithError(err).Warn("explorer: invalid ws url, falling back to polling")
		e.pollBlocks(ctx)
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			log.WithError(err).Debugf(
				"explorer: ws connection failed, polling every %s", e.pollInterval,
			)
			e.pollBlocks(ctx)
			return
		}

		if err := e.consumeBlocks(ctx, conn); err != nil {
			log.WithError(err).Debug("explorer: ws connection lost, reconnecting")
		}
		// nolint
		conn.Close()
	}
}

func (e *explorerSvc) consumeBlocks(ctx context.Context, conn *websocket.Conn) error {
	payload := map[string]any{"action": "want", "data": []string{"blocks"}}
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("failed to subscribe for blocks: %s", err)
	}

	go func() {
		<-ctx.Done()
		// nolint
		conn.Close()
	}()

	var lastHeight uint64
	for {
		var message struct {
			Block struct {
				Height uint64 `json:"height"`
			} `json:"block"`
		}
		if err := conn.ReadJSON(&message); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if message.Block.Height > lastHeight {
			lastHeight = message.Block.Height
			e.sendBlockEvent(types.BlockEvent{Height: message.Block.Height})
		}
	}
}

func (e *explorerSvc) pollBlocks(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	var lastHeight uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, err := e.GetBlockHeight()
			if err != nil {
				log.WithError(err).Debug("explorer: failed to poll block height")
				continue
			}
			if height > lastHeight {
				lastHeight = height
				e.sendBlockEvent(types.BlockEvent{Height: height})
			}
		}
	}
}

func (e *explorerSvc) sendBlockEvent(event types.BlockEvent) {
	select {
	case e.blockCh <- event:
	default:
	}
}

func deriveWsURL(baseUrl string) (string, error) {
	parsedUrl, err := url.Parse(baseUrl)
	if err != nil {
		return "", err
	}

	scheme := "ws"
	if parsedUrl.Scheme == "https" {
		scheme = "wss"
	}
	parsedUrl.Scheme = scheme

	return fmt.Sprintf("%s/v1/ws", strings.TrimRight(parsedUrl.String(), "/")), nil
}
