// ScopeTerm
// Copyright (c) 2026 The ScopeTerm Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of ScopeTerm.
//
// ScopeTerm is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ScopeTerm is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with ScopeTerm.  If not, see <http://www.gnu.org/licenses/>.

package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/scopeterm/scopeterm/pkg/api/models"
)

const (
	connectTimeout  = 10 * time.Second
	disconnectQuiet = 250
)

var ErrNoBroker = errors.New("mqtt broker not configured")

// MQTTPublisher forwards notifications to an MQTT broker. Decoded sample
// batches go to <topic>/<channel>, everything else to <topic>/<method>.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
	stopCh    chan struct{}
	broker    string
	topic     string
	filter    []string
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewMQTTPublisher creates a publisher for the given broker URL and base
// topic. An empty filter publishes every notification.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     topic,
		filter:    filter,
		newClient: mqtt.NewClient,
		stopCh:    make(chan struct{}),
	}
}

// Start connects to the broker and begins publishing notifications until
// Stop is called or the channel closes.
func (p *MQTTPublisher) Start(notifications <-chan models.Notification) error {
	if p.broker == "" {
		return ErrNoBroker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID("scopeterm-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}

	p.client = p.newClient(opts)

	token := p.client.Connect()
	switch {
	case !token.WaitTimeout(connectTimeout):
		log.Warn().Msgf("mqtt publisher: %s not reachable yet, retrying in background", p.broker)
	case token.Error() != nil:
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Info().Msgf("mqtt publisher: publishing to %s/#", p.topic)

	p.wg.Add(1)
	go p.publishNotifications(notifications)

	return nil
}

// Stop ends the publishing loop and disconnects from the broker, which also
// cancels a pending connect retry. It is safe to call more than once.
func (p *MQTTPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
		if p.client != nil {
			log.Debug().Msg("mqtt publisher: disconnecting")
			p.client.Disconnect(disconnectQuiet)
		}
	})
}

func (p *MQTTPublisher) publishNotifications(notifications <-chan models.Notification) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return
			}
			if !p.matchesFilter(notif.Method) {
				continue
			}

			topic, err := p.topicFor(notif)
			if err != nil {
				log.Error().Err(err).Msgf("mqtt publisher: bad %s payload", notif.Method)
				continue
			}

			token := p.client.Publish(topic, 0, false, []byte(notif.Params))
			if token.Wait() && token.Error() != nil {
				log.Error().Err(token.Error()).Msg("mqtt publisher: failed to publish message")
				continue
			}
		}
	}
}

func (p *MQTTPublisher) topicFor(notif models.Notification) (string, error) {
	if notif.Method != models.NotificationSeriesAppended {
		return p.topic + "/" + notif.Method, nil
	}
	var params models.SeriesAppendedParams
	if err := json.Unmarshal(notif.Params, &params); err != nil {
		return "", fmt.Errorf("failed to unmarshal series batch: %w", err)
	}
	return p.topic + "/" + strconv.Itoa(params.Channel), nil
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	if len(p.filter) == 0 {
		return true
	}
	for _, f := range p.filter {
		if f == method {
			return true
		}
	}
	return false
}
