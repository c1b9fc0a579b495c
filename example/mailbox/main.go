package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.io/infrasutra/shortmail/internal/engineio"
)

func main() {
	baseURL := getenvDefault("SHORTMAIL_URL", "http://localhost:3025")
	smtpAddr := getenvDefault("SHORTMAIL_SMTP", "localhost:2025")
	domain := getenvDefault("MAIL_DOMAIN", "example.com")
	mailbox := getenvDefault("MAILBOX", "demo")

	endpoint := baseURL + "/socket.io/?EIO=3&transport=polling"
	packets := get(endpoint)
	var hs engineio.Handshake
	if err := json.Unmarshal([]byte(strings.TrimPrefix(packets[0], "0")), &hs); err != nil {
		fail("handshake", err)
	}
	fmt.Println("session", hs.SID)
	endpoint += "&sid=" + hs.SID

	post(endpoint, fmt.Sprintf(`42["set shortid",%q]`, mailbox))
	for _, p := range get(endpoint) {
		fmt.Println("<-", p)
	}

	to := mailbox + "@" + domain
	message := fmt.Sprintf("From: sender@shortmail.dev\r\nTo: %s\r\nSubject: Hello %s\r\n\r\nSent at %s.\r\n",
		to, mailbox, time.Now().Format(time.RFC3339))
	if err := smtp.SendMail(smtpAddr, nil, "sender@shortmail.dev", []string{to}, []byte(message)); err != nil {
		fail("send mail", err)
	}
	fmt.Println("sent mail to", to)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range get(endpoint) {
			if packet, ok := engineio.Parse(p); ok && packet.Event == "mail" {
				fmt.Println("<- mail", string(packet.Payload))
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	fail("wait for mail", fmt.Errorf("no mail event within 10s"))
}

func get(url string) []string {
	resp, err := http.Get(url)
	if err != nil {
		fail("poll", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fail("poll", fmt.Errorf("%s: %s", resp.Status, body))
	}
	return engineio.DecodePayload(string(body))
}

func post(url string, packets ...string) {
	resp, err := http.Post(url, "text/plain;charset=UTF-8", strings.NewReader(engineio.EncodePayload(packets)))
	if err != nil {
		fail("post", err)
	}
	resp.Body.Close()
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}

func getenvDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
