// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/reviewleopard-backend/internal/auth"
	"github.com/unclebandit/reviewleopard-backend/internal/config"
	"github.com/unclebandit/reviewleopard-backend/internal/db"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
	"github.com/unclebandit/reviewleopard-backend/internal/repository"
)

func main() {
	businessID := flag.Int64("business", 0, "business to seed default templates for")
	tokenTTL := flag.Duration("token-ttl", 0, "also print an API token valid for this long")
	flag.Parse()
	if *businessID <= 0 {
		log.Fatal("-business is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	conn, err := db.Open(cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	repo := &repository.TemplateRepository{DB: conn}
	ctx := context.Background()
	for _, t := range defaultTemplates(*businessID) {
		if err := repo.Create(ctx, t); err != nil {
			log.Fatalf("failed to seed template %s: %v", t.Key, err)
		}
		fmt.Printf("Seeded template: %s (%s)\n", t.Key, t.Status)
	}

	if *tokenTTL > 0 {
		token, err := auth.Issue(cfg.Auth.JWTSecret, *businessID, *tokenTTL)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("API token (expires %s): %s\n", time.Now().Add(*tokenTTL).UTC().Format(time.RFC3339), token)
	}
	fmt.Println("Database seeding completed successfully!")
}

func hours(n int) *int { return &n }

// defaultTemplates are the onboarding templates every business starts with. They
// are created ready so the owner activates them explicitly.
func defaultTemplates(businessID int64) []*model.AutomationTemplate {
	both := pq.StringArray{string(model.ChannelEmail), string(model.ChannelSMS)}
	return []*model.AutomationTemplate{
		{
			BusinessID:  businessID,
			Key:         "job-completed",
			Name:        "Job completed",
			Status:      model.TemplateReady,
			Channels:    both,
			TriggerType: string(model.TriggerJobCompleted),
			Config: model.TemplateConfig{
				Subject:     "How did we do, {{customer.first_name}}?",
				MessageBody: "Hi {{customer.first_name}}, thanks for choosing {{business.name}} for your {{service}}.\n\nWould you take a minute to leave us a review? {{review_link}}",
				DelayHours:  hours(24),
			},
		},
		{
			BusinessID:  businessID,
			Key:         "invoice-paid",
			Name:        "Invoice paid",
			Status:      model.TemplateReady,
			Channels:    both,
			TriggerType: string(model.TriggerInvoicePaid),
			Config: model.TemplateConfig{
				Subject:     "Thanks for your payment, {{customer.first_name}}",
				MessageBody: "Hi {{customer.first_name}}, thanks again for your business. If you have a moment, a review helps {{business.name}} a lot: {{review_link}}",
				DelayHours:  hours(2),
			},
		},
		{
			BusinessID: businessID,
			Key:        "general-thank-you",
			Name:       "General thank you",
			Status:     model.TemplateReady,
			Channels:   both,
			IsFallback: true,
			Config: model.TemplateConfig{
				MessageBody: "Hi {{customer.first_name}}, thank you for choosing {{business.name}}! We'd love your feedback: {{review_link}}",
				DelayHours:  hours(4),
			},
		},
	}
}
