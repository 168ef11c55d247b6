package main

import (
	"fmt"
	"strings"

	"storysync/internal/story"
)

func printStories(stories []*story.Story) {
	if len(stories) == 0 {
		fmt.Println("No stories.")
		return
	}
	for _, s := range stories {
		fmt.Printf("%-24s  %-16s  %-20s  %s\n", s.ID, truncate(s.Author, 16), truncate(s.Location, 20), truncate(s.Description, 50))
	}
}

func printStory(s *story.Story) {
	fmt.Printf("ID:       %s\n", s.ID)
	fmt.Printf("Title:    %s\n", s.Title)
	fmt.Printf("Author:   %s\n", s.Author)
	fmt.Printf("Date:     %s\n", s.Date)
	fmt.Printf("Location: %s\n", s.Location)
	if s.Image != nil {
		fmt.Printf("Photo:    %s\n", *s.Image)
	}
	fmt.Printf("\n%s\n", s.Content)
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

// truncate shortens s to at most n runes on one line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
