// Command ws_client plans and starts an operation, printing the lifecycle
// events streamed for its vehicle over /graphql/ws.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func call(method, u string, body string) *http.Response {
	req, _ := http.NewRequest(method, u, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	return resp
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)
	vehicleID := "demo-tractor"
	date := time.Now().Format("2006-01-02")

	_ = call(http.MethodPut, base+"/v1/vehicles/"+vehicleID, `{"name":"Demo tractor","type":"tractor","currentHours":1000}`).Body.Close()
	_ = call(http.MethodPut, base+"/v1/operators/demo-operator", `{"name":"Demo operator"}`).Body.Close()
	resp := call(http.MethodPost, base+"/v1/operations", fmt.Sprintf(`{"vehicleId":%q,"operatorId":"demo-operator","operationType":"plowing","date":%q}`, vehicleID, date))
	var op struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Operation ID: %s", op.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/graphql/ws"}
	hdr := http.Header{}
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{
		"query":     "subscription($vehicleId: ID!) { operationEvents(vehicleId: $vehicleId) }",
		"variables": map[string]any{"vehicleId": vehicleID},
	})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	time.Sleep(500 * time.Millisecond)
	_ = call(http.MethodPut, base+"/v1/operations/"+op.ID+"/start", `{"startHours":1000}`).Body.Close()
	_ = call(http.MethodPut, base+"/v1/operations/"+op.ID+"/complete", `{"endHours":1008}`).Body.Close()

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
