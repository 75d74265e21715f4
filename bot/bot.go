// Package bot plays catalog sounds into Discord voice channels on text
// commands such as "/OpenHowl play <sound_id>".
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"openhowl/config"
	"openhowl/logger"

	"github.com/bwmarrin/discordgo"
)

// Command is a parsed chat command.
type Command struct {
	Name string
	Args []string
}

// ParseCommand recognises messages that start with prefix.
func ParseCommand(prefix, content string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

// Bot owns the Discord gateway session and one voice connection per guild.
type Bot struct {
	session *discordgo.Session
	prefix  string
	player  *Player

	mu      sync.Mutex
	voice   map[string]*discordgo.VoiceConnection
	playing map[string]context.CancelFunc
	ctx     context.Context
}

// New creates the Discord session.
func New(cfg *config.Config) (*Bot, error) {
	if cfg.DiscordToken == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN is not set")
	}
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuilds |
		discordgo.IntentsMessageContent

	return &Bot{
		session: session,
		prefix:  cfg.BotPrefix,
		player: &Player{
			FFmpegPath: cfg.FFmpegPath,
			APIBaseURL: cfg.APIBaseURL,
			TempDir:    cfg.TempDir,
		},
		voice:   make(map[string]*discordgo.VoiceConnection),
		playing: make(map[string]context.CancelFunc),
	}, nil
}

// Run connects and handles commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("[Bot] logged in",
			logger.String("user", r.User.Username),
			logger.String("id", r.User.ID))
	})
	b.session.AddHandler(b.onMessage)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	<-ctx.Done()

	b.mu.Lock()
	for guildID, cancel := range b.playing {
		cancel()
		delete(b.playing, guildID)
	}
	for guildID, vc := range b.voice {
		if err := vc.Disconnect(); err != nil {
			logger.Warn("[Bot] voice disconnect failed", logger.String("guild", guildID), logger.ErrorField(err))
		}
		delete(b.voice, guildID)
	}
	b.mu.Unlock()
	return b.session.Close()
}

func (b *Bot) reply(channelID, text string) {
	if _, err := b.session.ChannelMessageSend(channelID, text); err != nil {
		logger.Warn("[Bot] failed to send message", logger.ErrorField(err))
	}
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	cmd, ok := ParseCommand(b.prefix, m.Content)
	if !ok {
		return
	}

	switch cmd.Name {
	case "join":
		if _, err := b.join(m.GuildID, m.Author.ID, m.ChannelID); err != nil {
			logger.Debug("[Bot] join failed", logger.ErrorField(err))
		}
	case "leave":
		b.leave(m.GuildID, m.ChannelID)
	case "play":
		if len(cmd.Args) != 1 {
			b.reply(m.ChannelID, "Usage: "+b.prefix+"play <sound_id>")
			return
		}
		b.play(m.GuildID, m.Author.ID, m.ChannelID, cmd.Args[0])
	default:
		b.reply(m.ChannelID, fmt.Sprintf("Unknown command `%s`", cmd.Name))
	}
}

// join connects to, or moves to, the author's voice channel.
func (b *Bot) join(guildID, userID, textChannelID string) (*discordgo.VoiceConnection, error) {
	vs, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		b.reply(textChannelID, "You must be in a voice channel for me to join!")
		return nil, fmt.Errorf("user %s is not in a voice channel", userID)
	}

	vc, err := b.session.ChannelVoiceJoin(guildID, vs.ChannelID, false, true)
	if err != nil {
		b.reply(textChannelID, "Could not join your voice channel.")
		return nil, fmt.Errorf("discord: join voice channel %q: %w", vs.ChannelID, err)
	}

	b.mu.Lock()
	b.voice[guildID] = vc
	b.mu.Unlock()

	name := vs.ChannelID
	if ch, err := b.session.State.Channel(vs.ChannelID); err == nil {
		name = ch.Name
	}
	b.reply(textChannelID, fmt.Sprintf("Joined %s!", name))
	return vc, nil
}

func (b *Bot) leave(guildID, textChannelID string) {
	b.mu.Lock()
	vc, ok := b.voice[guildID]
	delete(b.voice, guildID)
	if cancel, playing := b.playing[guildID]; playing {
		cancel()
		delete(b.playing, guildID)
	}
	b.mu.Unlock()

	if !ok {
		b.reply(textChannelID, "I'm not connected to any voice channel!")
		return
	}
	if err := vc.Disconnect(); err != nil {
		logger.Warn("[Bot] voice disconnect failed", logger.String("guild", guildID), logger.ErrorField(err))
	}
	b.reply(textChannelID, "Disconnected from voice channel.")
}

// play starts soundID in the guild's voice channel, cancelling whatever
// was playing there.
func (b *Bot) play(guildID, userID, textChannelID, soundID string) {
	b.mu.Lock()
	vc := b.voice[guildID]
	b.mu.Unlock()
	if vc == nil {
		var err error
		if vc, err = b.join(guildID, userID, textChannelID); err != nil {
			return
		}
	}

	parent := b.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	b.mu.Lock()
	if prev, ok := b.playing[guildID]; ok {
		prev()
	}
	b.playing[guildID] = cancel
	b.mu.Unlock()

	b.reply(textChannelID, fmt.Sprintf("Playing sound `%s`", soundID))

	go func() {
		defer cancel()
		if err := vc.Speaking(true); err != nil {
			logger.Warn("[Bot] speaking notification failed", logger.ErrorField(err))
		}
		err := b.player.Play(ctx, soundID, vc.OpusSend)
		if err := vc.Speaking(false); err != nil {
			logger.Debug("[Bot] speaking notification failed", logger.ErrorField(err))
		}
		if err != nil && ctx.Err() == nil {
			logger.Warn("[Bot] playback failed", logger.String("sound", soundID), logger.ErrorField(err))
			b.reply(textChannelID, fmt.Sprintf("Could not play sound `%s`", soundID))
		}
	}()
}
