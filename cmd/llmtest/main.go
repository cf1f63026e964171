// Command llmtest exercises the configured LLM providers with a short
// Spanish conversation, to verify credentials and fallback wiring without
// running the full bot.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/aidanalabs/agenda-bot/internal/classifier"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := classifier.LLMRequest{
		System: []string{"Eres AIDANA, asistente de reservas por WhatsApp. Responde breve y en español."},
		Messages: []classifier.ChatMessage{
			{Role: classifier.ChatRoleUser, Content: "Hola, ¿puedo reservar una mesa?"},
			{Role: classifier.ChatRoleAssistant, Content: "¡Claro! ¿Para qué fecha y hora te gustaría?"},
			{Role: classifier.ChatRoleUser, Content: "El sábado a las 8 de la noche, somos cuatro."},
		},
		MaxTokens:   200,
		Temperature: 0.7,
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		fmt.Println("GEMINI_API_KEY not set; nothing to test")
		return
	}

	model := os.Getenv("GEMINI_MODEL_ID")
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := classifier.NewGeminiLLMClient(ctx, geminiKey, model)
	if err != nil {
		log.Fatalf("gemini client: %v", err)
	}
	defer func() { _ = client.Close() }()

	req.Model = model
	start := time.Now()
	resp, err := client.Complete(ctx, req)
	if err != nil {
		log.Fatalf("gemini completion: %v", err)
	}
	fmt.Printf("gemini responded in %v:\n%s\n", time.Since(start).Round(time.Millisecond), resp.Text)
}
