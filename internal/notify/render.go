// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tomtom215/tribewatch/internal/database"
	"github.com/tomtom215/tribewatch/internal/models"
)

// ErrVanished is returned by Render when the village or player an event is
// about no longer exists in the snapshot.
var ErrVanished = errors.New("notify: entity vanished from snapshot")

const (
	assetBase         = "https://dsnl.innogamescdn.com/asset/415a0ab7/graphic/"
	thumbAcademy      = assetBase + "big_buildings/snob1.png"
	thumbWall         = assetBase + "big_buildings/wall3.png"
	thumbTower        = assetBase + "big_buildings/watchtower3.png"
	thumbKills        = assetBase + "awards/progress/kills.png"
	footerTimeLayout  = "2006-01-02 15:04:05"
	unknownPlayerName = "Onbekend"
	barbarianName     = "Barbarendorp"
)

// Lookup resolves snapshot names at render time.
type Lookup interface {
	Village(ctx context.Context, world string, id int64) (*models.Village, error)
	Player(ctx context.Context, world string, id int64) (*models.Player, error)
	TribeTag(ctx context.Context, world string, id int64) (string, error)
}

// Renderer turns events into Dutch notifications.
type Renderer struct {
	lookup   Lookup
	loc      *time.Location
	gameHost string
	printer  *message.Printer
}

// NewRenderer creates a renderer. Footer times are shown in loc and links
// point at https://{world}.{gameHost}.
func NewRenderer(lookup Lookup, loc *time.Location, gameHost string) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{
		lookup:   lookup,
		loc:      loc,
		gameHost: gameHost,
		printer:  message.NewPrinter(language.Dutch),
	}
}

// Render builds the payload for e as seen by a subscription tracking
// trackedTribe (models.AllTribes for wildcard subscriptions).
func (r *Renderer) Render(ctx context.Context, e *models.Event, trackedTribe int64) (*Payload, error) {
	p := &Payload{
		EventKey:  e.Key,
		World:     e.World,
		Kind:      e.Kind,
		Timestamp: e.DetectedAt,
	}

	var err error
	switch e.Kind {
	case models.KindConquer, models.KindConquerFeed:
		err = r.renderConquer(ctx, e, trackedTribe, p)
	case models.KindAcademy:
		err = r.renderAcademy(ctx, e, p)
	case models.KindWall, models.KindTower:
		err = r.renderBuilding(ctx, e, p)
	case models.KindOD:
		err = r.renderKills(ctx, e, p)
	default:
		err = fmt.Errorf("notify: cannot render kind %q", e.Kind)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Renderer) renderConquer(ctx context.Context, e *models.Event, tracked int64, p *Payload) error {
	village, err := r.village(ctx, e)
	if err != nil {
		return err
	}

	newName, err := r.playerName(ctx, e.World, e.NewOwnerID, unknownPlayerName)
	if err != nil {
		return err
	}
	oldName, err := r.playerName(ctx, e.World, e.OldOwnerID, barbarianName)
	if err != nil {
		return err
	}
	newLink := bold(link(newName, r.playerURL(e.World, e.NewOwnerID)))
	oldLink := bold(link(oldName, r.playerURL(e.World, e.OldOwnerID)))

	if tracked == models.AllTribes {
		tracked = e.NewTribeID
	}

	switch {
	case e.NewTribeID == tracked && e.OldOwnerID == 0:
		p.Description = newLink + " heeft een barbarendorp veroverd!"
		p.Color = ColorGreen
	case e.NewTribeID == tracked && e.NewOwnerID == e.OldOwnerID:
		p.Description = newLink + " heeft zichzelf veroverd!"
		p.Color = ColorYellow
	case e.NewTribeID == tracked && e.NewTribeID == e.OldTribeID && tracked != 0:
		p.Description = fmt.Sprintf("%s heeft een dorp veroverd van zijn of haar stamgenoot %s!", newLink, oldLink)
		p.Color = ColorYellow
	case e.OldTribeID == tracked && e.NewTribeID != tracked && e.NewTribeID == 0:
		p.Description = fmt.Sprintf("%s is een dorp verloren aan %s!", oldLink, newLink)
		p.Color = ColorRed
	case e.OldTribeID == tracked && e.NewTribeID != tracked:
		p.Description = fmt.Sprintf("%s is een dorp verloren aan %s (`%s`)!", oldLink, newLink, r.tribeTag(ctx, e.World, e.NewTribeID))
		p.Color = ColorRed
	case e.OldTribeID == 0:
		p.Description = fmt.Sprintf("%s heeft een dorp veroverd van %s!", newLink, oldLink)
		p.Color = ColorGreen
	default:
		p.Description = fmt.Sprintf("%s heeft een dorp veroverd van %s (`%s`)!", newLink, oldLink, r.tribeTag(ctx, e.World, e.OldTribeID))
		p.Color = ColorGreen
	}

	p.addField("Dorp", link(villageLabel(village), r.villageURL(e.World, village.ID)), true)
	p.addField("Punten", code(fmt.Sprint(village.Points)), true)
	p.Footer = "Tijdstip: " + e.DetectedAt.In(r.loc).Format(footerTimeLayout)
	return nil
}

func (r *Renderer) renderAcademy(ctx context.Context, e *models.Event, p *Payload) error {
	village, err := r.village(ctx, e)
	if err != nil {
		return err
	}
	owner, err := r.ownerName(ctx, e.World, village.PlayerID)
	if err != nil {
		return err
	}

	ownerRef := owner
	if village.PlayerID != 0 {
		ownerRef = bold(link(owner, r.playerURL(e.World, village.PlayerID)))
	}
	p.Description = ownerRef + " heeft een adelshoeve gebouwd"
	p.Color = ColorRed
	p.addField("Dorp", code(villageLabel(village)), true)
	p.addField("Punten", code(fmt.Sprint(e.NewMagnitude)), true)
	p.addField("Link", link("Dorp bekijken", r.villageURL(e.World, village.ID)), true)
	p.ThumbnailURL = thumbAcademy
	return nil
}

func (r *Renderer) renderBuilding(ctx context.Context, e *models.Event, p *Payload) error {
	village, err := r.village(ctx, e)
	if err != nil {
		return err
	}
	owner, err := r.ownerName(ctx, e.World, village.PlayerID)
	if err != nil {
		return err
	}

	world := strings.ToUpper(e.World)
	p.Color = ColorBlue
	if e.Kind == models.KindWall {
		p.Title = "Muur gesloopt (20>0) op " + world
		p.ThumbnailURL = thumbWall
	} else {
		p.Title = "Uitkijktoren gebouwd op " + world
		p.ThumbnailURL = thumbTower
	}
	p.addField("Dorp", code(villageLabel(village)), true)
	p.addField("Eigenaar", code(owner), true)
	if e.Kind == models.KindTower {
		p.addField("Uitkijktoren level", code(fmt.Sprint(e.Level)), true)
	}
	return nil
}

func (r *Renderer) renderKills(ctx context.Context, e *models.Event, p *Payload) error {
	player, err := r.lookup.Player(ctx, e.World, e.EntityID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrVanished
	}
	if err != nil {
		return err
	}

	label := models.KillType(e.Metric).Label()
	if tag := r.tribeTag(ctx, e.World, player.TribeID); player.TribeID != 0 && tag != "" {
		p.Description = fmt.Sprintf("**%s** van **%s** (%s) is gestegen", label, player.Name, tag)
	} else {
		p.Description = fmt.Sprintf("**%s** van **%s** is gestegen", label, player.Name)
	}
	p.Color = ColorGreen
	p.addField("Stijging", code("+"+r.number(e.Delta())), false)
	p.addField("Oude score", code(r.number(e.OldMagnitude)), true)
	p.addField("Nieuwe score", code(r.number(e.NewMagnitude)), true)
	p.ThumbnailURL = thumbKills
	return nil
}

func (r *Renderer) village(ctx context.Context, e *models.Event) (*models.Village, error) {
	v, err := r.lookup.Village(ctx, e.World, e.EntityID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrVanished
	}
	return v, err
}

// playerName resolves a player, falling back to fallback for id 0 or an
// unknown player.
func (r *Renderer) playerName(ctx context.Context, world string, id int64, fallback string) (string, error) {
	if id == 0 {
		return barbarianName, nil
	}
	player, err := r.lookup.Player(ctx, world, id)
	if errors.Is(err, database.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return "", err
	}
	return player.Name, nil
}

// ownerName resolves a village owner; a missing owner means the snapshot
// no longer supports the event.
func (r *Renderer) ownerName(ctx context.Context, world string, id int64) (string, error) {
	if id == 0 {
		return barbarianName, nil
	}
	player, err := r.lookup.Player(ctx, world, id)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrVanished
	}
	if err != nil {
		return "", err
	}
	return player.Name, nil
}

func (r *Renderer) tribeTag(ctx context.Context, world string, id int64) string {
	if id == 0 {
		return ""
	}
	tag, err := r.lookup.TribeTag(ctx, world, id)
	if err != nil {
		return "?"
	}
	return tag
}

func (r *Renderer) number(n int64) string {
	return r.printer.Sprintf("%d", n)
}

func (r *Renderer) playerURL(world string, id int64) string {
	return fmt.Sprintf("https://%s.%s/game.php?screen=info_player&id=%d", world, r.gameHost, id)
}

func (r *Renderer) villageURL(world string, id int64) string {
	return fmt.Sprintf("https://%s.%s/game.php?screen=info_village&id=%d", world, r.gameHost, id)
}

// villageLabel is "name (x|y)" with the dump's URL encoding removed.
func villageLabel(v *models.Village) string {
	name, err := url.QueryUnescape(v.Name)
	if err != nil {
		name = v.Name
	}
	return fmt.Sprintf("%s (%d|%d)", name, v.X, v.Y)
}

func link(text, target string) string {
	return "[" + text + "](" + target + ")"
}

func bold(s string) string {
	return "**" + s + "**"
}

func code(s string) string {
	return "```" + s + "```"
}
