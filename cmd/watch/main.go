// watch tails a camhubd preview feed from the terminal and reports frame
// rate and sizes. Handy for checking a camera without opening a browser.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image/jpeg"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	server := flag.String("server", "localhost:8080", "camhubd host:port")
	camera := flag.String("camera", "0", "camera id to watch")
	flag.Parse()

	url := fmt.Sprintf("ws://%s/ws/streams/%s", *server, *camera)
	fmt.Printf("Connecting to %s ...\n", url)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	var (
		frames int
		bytesT int64
		start  = time.Now()
		report = time.Now()
	)
	fmt.Println("Receiving frames (Ctrl+C to stop)...")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.BinaryMessage {
			fmt.Printf("event: %s\n", data)
			continue
		}
		frames++
		bytesT += int64(len(data))

		if time.Since(report) >= 2*time.Second {
			elapsed := time.Since(start).Seconds()
			line := fmt.Sprintf("%d frames, %.1f fps, %.1f KB/frame",
				frames, float64(frames)/elapsed,
				float64(bytesT)/float64(frames)/1024)
			if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err == nil {
				line += fmt.Sprintf(", %dx%d", cfg.Width, cfg.Height)
			}
			fmt.Println(line)
			report = time.Now()
		}
	}

	elapsed := time.Since(start).Seconds()
	if frames > 0 && elapsed > 0 {
		fmt.Printf("\n%d frames in %.1fs (%.1f fps)\n", frames, elapsed, float64(frames)/elapsed)
	}
}
