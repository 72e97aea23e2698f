package types

// EpisodePayload is the payload of an episode_transcription task. It carries
// everything the pipeline needs to fetch the audio and label the transcript;
// the enqueue side fills it in from the podcast feed.
type EpisodePayload struct {
	TaskType     string `json:"task_type"`
	PodcastTitle string `json:"podcast_title"`
	EpisodeTitle string `json:"episode_title"`
	EpisodeURL   string `json:"episode_url"`
	Description  string `json:"description"`
	PubDate      string `json:"pubdate"`
}
