// Package main provides the command-line client for the playback server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/encore/internal/api/connect"
)

var (
	app     = kingpin.New("encorectl", "encore playback client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ENCORE_ADMIN_TOKEN env)").Envar("ENCORE_ADMIN_TOKEN").String()
	noColor = app.Flag("no-color", "Disable colored output").Bool()

	// search command
	searchCmd    = app.Command("search", "Search the catalog")
	searchQuery  = searchCmd.Arg("query", "Search terms").Required().String()
	searchSource = searchCmd.Flag("source", "Catalog (youtube, ytmusic, soundcloud, spotify, auto)").Default("auto").String()
	searchLimit  = searchCmd.Flag("limit", "Maximum results").Default("10").Int()

	// join command
	joinCmd     = app.Command("join", "Connect a guild to a voice channel")
	joinGuild   = joinCmd.Arg("guild", "Guild ID").Required().String()
	joinChannel = joinCmd.Arg("channel", "Voice channel ID").Required().String()

	// enqueue command
	enqueueCmd       = app.Command("enqueue", "Queue a track by link or search terms").Alias("add")
	enqueueGuild     = enqueueCmd.Arg("guild", "Guild ID").Required().String()
	enqueueInput     = enqueueCmd.Arg("input", "Track link or search terms").Required().String()
	enqueueUser      = enqueueCmd.Flag("user", "Requester ID").Default("cli").String()
	enqueueUserName  = enqueueCmd.Flag("user-name", "Requester display name").Default("encorectl").String()

	// control commands
	playCmd        = app.Command("play", "Start playback from the queue")
	playGuild      = playCmd.Arg("guild", "Guild ID").Required().String()
	pauseCmd       = app.Command("pause", "Pause playback")
	pauseGuild     = pauseCmd.Arg("guild", "Guild ID").Required().String()
	resumeCmd      = app.Command("resume", "Resume playback")
	resumeGuild    = resumeCmd.Arg("guild", "Guild ID").Required().String()
	stopCmd        = app.Command("stop", "Stop playback and clear the queue")
	stopGuild      = stopCmd.Arg("guild", "Guild ID").Required().String()
	skipCmd        = app.Command("skip", "Skip the current track")
	skipGuild      = skipCmd.Arg("guild", "Guild ID").Required().String()
	voteCmd        = app.Command("voteskip", "Cast a skip vote")
	voteGuild      = voteCmd.Arg("guild", "Guild ID").Required().String()
	voteUser       = voteCmd.Arg("user", "Voter ID").Required().String()
	voteListeners  = voteCmd.Flag("listeners", "Listeners in the channel").Default("1").Int()
	volumeCmd      = app.Command("volume", "Set the volume")
	volumeGuild    = volumeCmd.Arg("guild", "Guild ID").Required().String()
	volumeValue    = volumeCmd.Arg("value", "Volume between 0 and 1").Required().Float64()
	loopCmd        = app.Command("loop", "Set or cycle the loop mode")
	loopGuild      = loopCmd.Arg("guild", "Guild ID").Required().String()
	loopMode       = loopCmd.Arg("mode", "off, track or queue (omit to cycle)").String()
	shuffleCmd     = app.Command("shuffle", "Enable or disable shuffle")
	shuffleGuild   = shuffleCmd.Arg("guild", "Guild ID").Required().String()
	shuffleEnabled = shuffleCmd.Flag("on", "Enable shuffle").Default("true").Bool()
	autoplayCmd    = app.Command("autoplay", "Enable or disable autoplay of related tracks")
	autoplayGuild  = autoplayCmd.Arg("guild", "Guild ID").Required().String()
	autoplayOn     = autoplayCmd.Flag("on", "Enable autoplay").Default("true").Bool()
	moveCmd        = app.Command("move", "Move a queued track")
	moveGuild      = moveCmd.Arg("guild", "Guild ID").Required().String()
	moveFrom       = moveCmd.Arg("from", "Current position (1-based)").Required().Int()
	moveTo         = moveCmd.Arg("to", "New position (1-based)").Required().Int()
	removeCmd      = app.Command("remove", "Remove a queued track")
	removeGuild    = removeCmd.Arg("guild", "Guild ID").Required().String()
	removeIndex    = removeCmd.Arg("position", "Position (1-based)").Required().Int()

	// queue command
	queueCmd      = app.Command("queue", "Show the queue")
	queueGuild    = queueCmd.Arg("guild", "Guild ID").Required().String()
	queuePage     = queueCmd.Flag("page", "Page number").Default("1").Int()
	queuePageSize = queueCmd.Flag("page-size", "Tracks per page").Default("10").Int()

	// nowplaying command
	nowCmd   = app.Command("nowplaying", "Show the current track").Alias("np")
	nowGuild = nowCmd.Arg("guild", "Guild ID").Required().String()

	// leave command
	leaveCmd   = app.Command("leave", "Disconnect a guild and drop its session")
	leaveGuild = leaveCmd.Arg("guild", "Guild ID").Required().String()

	// status command
	statusCmd   = app.Command("status", "Show session status")
	statusGuild = statusCmd.Arg("guild", "Guild ID (omit for all)").String()

	// watch command
	watchCmd   = app.Command("watch", "Stream playback events")
	watchGuild = watchCmd.Arg("guild", "Guild ID (omit for all)").String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	if *noColor {
		color.NoColor = true
	}

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ENCORE_ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewPlaybackClient(
		http.DefaultClient,
		*server,
		connect.WithInterceptors(apiconnect.NewTokenInterceptor(*token)),
	)

	ctx := context.Background()

	switch command {
	case searchCmd.FullCommand():
		search(ctx, client)
	case joinCmd.FullCommand():
		join(ctx, client)
	case enqueueCmd.FullCommand():
		enqueue(ctx, client)
	case playCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *playGuild, Action: "play"})
	case pauseCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *pauseGuild, Action: "pause"})
	case resumeCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *resumeGuild, Action: "resume"})
	case stopCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *stopGuild, Action: "stop"})
	case skipCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *skipGuild, Action: "skip"})
	case voteCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{
			GuildID:   *voteGuild,
			Action:    "voteskip",
			UserID:    *voteUser,
			Listeners: *voteListeners,
		})
	case volumeCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *volumeGuild, Action: "volume", Volume: *volumeValue})
	case loopCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *loopGuild, Action: "loop", Loop: *loopMode})
	case shuffleCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *shuffleGuild, Action: "shuffle", Shuffle: *shuffleEnabled})
	case autoplayCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *autoplayGuild, Action: "autoplay", Autoplay: *autoplayOn})
	case moveCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *moveGuild, Action: "move", From: *moveFrom, To: *moveTo})
	case removeCmd.FullCommand():
		control(ctx, client, &apiconnect.ControlRequest{GuildID: *removeGuild, Action: "remove", Index: *removeIndex})
	case queueCmd.FullCommand():
		showQueue(ctx, client)
	case nowCmd.FullCommand():
		nowPlaying(ctx, client)
	case leaveCmd.FullCommand():
		leave(ctx, client)
	case statusCmd.FullCommand():
		status(ctx, client)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func fail(err error) {
	errorColor.Printf("Error: %v\n", err)
	os.Exit(1)
}

func search(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.Search(ctx, &apiconnect.SearchRequest{
		Source: *searchSource,
		Query:  *searchQuery,
		Limit:  *searchLimit,
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Results (%d):\n", len(resp.Tracks))
	for i, t := range resp.Tracks {
		fmt.Printf("  %2d. %s\n", i+1, formatTrack(&t))
		fmt.Printf("      %s\n", t.URL)
	}
}

func join(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.Join(ctx, &apiconnect.JoinRequest{GuildID: *joinGuild, ChannelID: *joinChannel})
	if err != nil {
		fail(err)
	}
	fmt.Printf("Joined channel %s (state: %s)\n", *joinChannel, resp.State)
}

func enqueue(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.Enqueue(ctx, &apiconnect.EnqueueRequest{
		GuildID:       *enqueueGuild,
		Input:         *enqueueInput,
		RequesterID:   *enqueueUser,
		RequesterName: *enqueueUserName,
	})
	if err != nil {
		fail(err)
	}

	if !resp.Accepted {
		fmt.Printf("Rejected: %s\n", resp.Code)
		if resp.Track != nil {
			fmt.Printf("  %s\n", formatTrack(resp.Track))
		}
		return
	}

	fmt.Printf("Queued at position %d (state: %s)\n", resp.Position, resp.State)
	fmt.Printf("  %s\n", formatTrack(resp.Track))
	if resp.Alternative != nil {
		fmt.Printf("  Matched on %s (score %.2f)\n", resp.Alternative.Source, resp.Alternative.Score)
	}
}

func control(ctx context.Context, client *apiconnect.PlaybackClient, req *apiconnect.ControlRequest) {
	resp, err := client.Control(ctx, req)
	if err != nil {
		fail(err)
	}

	switch req.Action {
	case "voteskip":
		if resp.Vote != nil {
			if resp.Vote.Skipped {
				fmt.Println("Vote passed, track skipped")
			} else {
				fmt.Printf("Vote counted (%d/%d)\n", resp.Vote.Votes, resp.Vote.Required)
			}
		}
	case "volume":
		fmt.Printf("Volume: %.0f%%\n", resp.Volume*100)
	case "loop":
		fmt.Printf("Loop: %s\n", resp.Loop)
	case "shuffle":
		fmt.Printf("Shuffle: %v\n", resp.Shuffle)
	case "autoplay":
		fmt.Printf("Autoplay: %v\n", resp.Autoplay)
	default:
		fmt.Printf("%s: ok (state: %s)\n", req.Action, resp.State)
	}
	if resp.Track != nil {
		fmt.Printf("  %s\n", formatTrack(resp.Track))
	}
}

func showQueue(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.QueueSnapshot(ctx, &apiconnect.QueueSnapshotRequest{
		GuildID:  *queueGuild,
		Page:     *queuePage,
		PageSize: *queuePageSize,
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Queue: %d tracks (page %d/%d, loop: %s, shuffle: %v, volume: %.0f%%)\n",
		resp.Total, resp.Page, resp.TotalPages, resp.Loop, resp.Shuffle, resp.Volume*100)
	first := (resp.Page - 1) * *queuePageSize
	for i, t := range resp.Tracks {
		marker := "  "
		if first+i == resp.CurrentIndex {
			marker = "> "
		}
		fmt.Printf("%s%3d. %s\n", marker, first+i+1, formatTrack(&t))
	}
}

func nowPlaying(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.NowPlaying(ctx, &apiconnect.NowPlayingRequest{GuildID: *nowGuild})
	if err != nil {
		fail(err)
	}
	if !resp.Playing || resp.Track == nil {
		fmt.Println("No track currently playing")
		return
	}

	fmt.Println("Currently Playing:")
	fmt.Printf("  %s\n", formatTrack(resp.Track))
	fmt.Printf("  URL: %s\n", resp.Track.URL)
	if resp.Track.RequesterName != "" {
		fmt.Printf("  Requested by: %s\n", resp.Track.RequesterName)
	}
}

func leave(ctx context.Context, client *apiconnect.PlaybackClient) {
	if _, err := client.Leave(ctx, &apiconnect.LeaveRequest{GuildID: *leaveGuild}); err != nil {
		fail(err)
	}
	fmt.Println("Left voice channel")
}

func status(ctx context.Context, client *apiconnect.PlaybackClient) {
	resp, err := client.Status(ctx, &apiconnect.StatusRequest{GuildID: *statusGuild})
	if err != nil {
		fail(err)
	}

	fmt.Printf("Sessions (%d):\n", len(resp.Guilds))
	for _, g := range resp.Guilds {
		fmt.Printf("  %s: %s", g.GuildID, colored(stateColors, g.State))
		if g.ChannelID != "" {
			fmt.Printf(" in %s", g.ChannelID)
		}
		fmt.Printf(" (queue: %d, upcoming: %d, loop: %s, volume: %.0f%%, autoplay: %v)\n",
			g.QueueSize, g.Upcoming, g.Loop, g.Volume*100, g.Autoplay)
		if g.NowPlaying != nil {
			fmt.Printf("    Now: %s\n", formatTrack(g.NowPlaying))
		}
	}
}

func watch(ctx context.Context, client *apiconnect.PlaybackClient) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.Watch(ctx, &apiconnect.WatchRequest{GuildID: *watchGuild})
	if err != nil {
		fail(err)
	}
	defer stream.Close()

	fmt.Println("Watching events. Press Ctrl+C to exit.")

	for stream.Receive() {
		printEvent(stream.Msg())
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fmt.Printf("Stream error: %v\n", err)
	}
}

var (
	dimColor   = color.New(color.FgHiBlack)
	errorColor = color.New(color.FgHiRed)
)

var eventColors = map[string]*color.Color{
	"initial_state":  color.New(color.FgHiBlue),
	"track_started":  color.New(color.FgHiGreen),
	"track_queued":   color.New(color.FgCyan),
	"track_failed":   color.New(color.FgHiRed),
	"track_skipped":  color.New(color.FgYellow),
	"queue_empty":    color.New(color.FgHiMagenta),
	"session_closed": color.New(color.FgHiRed, color.Bold),
}

var stateColors = map[string]*color.Color{
	"playing": color.New(color.FgHiGreen),
	"paused":  color.New(color.FgYellow),
}

// colored renders s with the color registered for it, if any.
func colored(colors map[string]*color.Color, s string) string {
	if c, ok := colors[s]; ok {
		return c.Sprint(s)
	}
	return s
}

func printEvent(e *apiconnect.EventInfo) {
	stamp := dimColor.Sprintf("[%d %s]", e.SequenceNo, e.Time.Local().Format(time.TimeOnly))
	fmt.Printf("%s %s %s (state: %s)", stamp, e.GuildID, colored(eventColors, e.Type), colored(stateColors, e.State))
	if e.Track != nil {
		fmt.Printf(" %s", formatTrack(e.Track))
	}
	if e.Reason != "" {
		fmt.Printf(" reason=%s", e.Reason)
	}
	fmt.Println()
}

func formatTrack(t *apiconnect.TrackInfo) string {
	if t == nil {
		return ""
	}
	s := t.Title
	if t.Artist != "" {
		s = t.Artist + " - " + s
	}
	if t.DurationSec > 0 {
		s += fmt.Sprintf(" [%d:%02d]", t.DurationSec/60, t.DurationSec%60)
	}
	return fmt.Sprintf("%s (%s)", s, t.Source)
}
