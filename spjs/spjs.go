// Package spjs is a client for Serial Port JSON Server, used to reach a
// grbl controller over the network instead of a local serial device.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type SPJS struct {
	url string
	log zerolog.Logger

	mx    sync.RWMutex
	ports map[string]*PortRW

	outgoing chan message
}

type message struct {
	done    chan struct{}
	payload []byte
}

type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}
type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}
type SerialPortList struct {
	SerialPorts []SerialPort
}
type SerialPort struct {
	Name            string
	Friendly        string
	IsOpen          bool
	Baud            int
	BufferAlgorithm string
}

// New creates a client for the SPJS server at url and starts its
// connection loop.
func New(url string, log zerolog.Logger) *SPJS {
	sp := &SPJS{
		url:      url,
		log:      log,
		ports:    make(map[string]*PortRW),
		outgoing: make(chan message, 1000),
	}

	go sp.loop()

	return sp
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (sp *SPJS) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			sp.log.Error().Err(err).Msg("spjs read")
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// ignore echo messages
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			sp.log.Error().Err(err).Msg("spjs read")
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			sp.log.Error().Err(err).Msg("spjs parse")
			continue
		}
		sp.dispatch(val)
	}
}

func (sp *SPJS) dispatch(val interface{}) {
	switch msg := val.(type) {
	case *ErrorMessage:
		sp.log.Error().Str("error", msg.Error).Msg("spjs server error")
	case *DataFrame:
		sp.mx.RLock()
		port := sp.ports[msg.Port]
		sp.mx.RUnlock()
		if port != nil {
			port.deliver(msg.Data)
		}
	case *SerialPortList:
		sp.mx.RLock()
		defer sp.mx.RUnlock()
		for _, p := range msg.SerialPorts {
			port := sp.ports[p.Name]
			if port != nil && !p.IsOpen {
				go sp.WriteString("open " + p.Name + " grbl " + port.baud)
			}
		}
	}
}

func (sp *SPJS) loop() {
	var nextUp message

reconnect:
	for {
		sp.log.Info().Str("url", sp.url).Msg("connecting to spjs")
		ws, _, err := websocket.DefaultDialer.Dial(sp.url, nil)
		if err != nil {
			sp.log.Error().Err(err).Msg("spjs connect")
			time.Sleep(3 * time.Second)
			continue
		}
		sp.log.Info().Msg("spjs connected")
		ch := make(chan struct{})
		go sp.readLoop(ws, ch)
		go sp.WriteString("list") // refresh list on reconnect

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					sp.log.Error().Err(err).Msg("spjs send")
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-ch:
				continue reconnect
			case nextUp = <-sp.outgoing:
			}
		}
	}
}

// WriteString sends a raw SPJS command, blocking until it is handed to the
// server.
func (sp *SPJS) WriteString(data string) {
	ch := make(chan struct{})
	sp.outgoing <- message{done: ch, payload: []byte(data)}
	<-ch
}
