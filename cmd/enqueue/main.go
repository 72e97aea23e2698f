package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/tomecast/spout/internal/database"
	"github.com/tomecast/spout/internal/logger"
	"github.com/tomecast/spout/internal/types"
)

// enqueue reads a podcast RSS feed and queues one episode for transcription.
// With no -episode filter the most recent item is taken.
func main() {
	feedURL := flag.String("feed", "", "podcast RSS feed URL (required)")
	episodeMatch := flag.String("episode", "", "case-insensitive substring of the episode title; defaults to the latest episode")
	flag.Parse()

	if *feedURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	logger.Init("spout-enqueue")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	feed, err := gofeed.NewParser().ParseURLWithContext(*feedURL, ctx)
	if err != nil {
		log.Fatalf("failed to parse podcast feed: %v", err)
	}
	if len(feed.Items) == 0 {
		log.Fatal("podcast feed contains no episodes")
	}

	item, err := selectEpisode(feed, *episodeMatch)
	if err != nil {
		log.Fatal(err)
	}

	payload := types.EpisodePayload{
		TaskType:     "episode_transcription",
		PodcastTitle: feed.Title,
		EpisodeTitle: item.Title,
		EpisodeURL:   enclosureURL(item),
		Description:  item.Description,
		PubDate:      pubDate(item),
	}
	if payload.EpisodeURL == "" {
		log.Fatalf("episode %q has no audio enclosure", item.Title)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("failed to marshal task payload: %v", err)
	}

	db, err := database.NewClient(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	taskID, err := db.EnqueueTask(ctx, payload.TaskType, body)
	if err != nil {
		log.Fatalf("failed to enqueue episode: %v", err)
	}

	logger.Info(ctx, "episode enqueued", logger.Fields{
		"task_id": taskID,
		"podcast": payload.PodcastTitle,
		"episode": payload.EpisodeTitle,
	})
}

func selectEpisode(feed *gofeed.Feed, match string) (*gofeed.Item, error) {
	if match == "" {
		return feed.Items[0], nil
	}
	needle := strings.ToLower(match)
	for _, item := range feed.Items {
		if strings.Contains(strings.ToLower(item.Title), needle) {
			return item, nil
		}
	}
	return nil, fmt.Errorf("no episode title matches %q", match)
}

func enclosureURL(item *gofeed.Item) string {
	for _, enclosure := range item.Enclosures {
		if enclosure.URL != "" {
			return enclosure.URL
		}
	}
	return item.Link
}

func pubDate(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.Format(time.RFC3339)
	}
	return item.Published
}
