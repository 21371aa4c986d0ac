package scoring

import (
    "math"
    "strings"

    "leakhound/internal/domain"
    "leakhound/internal/urlx"
)

var (
    telegramHosts    = []string{"t.me", "telegram.me", "telegram.org", "telegram.dog", "tgstat.com"}
    discordHosts     = []string{"discord.gg", "discord.com", "discordapp.com", "disboard.org"}
    redditHosts      = []string{"reddit.com", "redd.it"}
    codeHosts        = []string{"github.com", "gitlab.com", "bitbucket.org", "sourceforge.net", "gist.github.com"}
    torrentHosts     = []string{"1337x.to", "thepiratebay.org", "nyaa.si", "rutracker.org", "limetorrents.info", "torrentgalaxy.to", "yts.mx", "fitgirl-repacks.site"}
    cyberlockerHosts = []string{"mega.nz", "mega.io", "mediafire.com", "drive.google.com", "docs.google.com", "dropbox.com", "terabox.com", "rapidgator.net", "zippyshare.com", "4shared.com", "uploaded.net", "pixeldrain.com", "gofile.io", "katfile.com"}
    socialHosts      = []string{"youtube.com", "youtu.be", "facebook.com", "tiktok.com", "instagram.com", "twitter.com", "x.com", "pinterest.com"}
    forumHosts       = []string{"blackhatworld.com", "nulled.to", "cracked.io", "warriorforum.com", "babiato.co", "forum.xda-developers.com"}
    forumPaths       = []string{"/forum", "/threads/", "/thread/", "/topic/", "viewtopic"}
)

// ClassifyPlatform assigns a platform from the URL shape. Rules are checked in
// priority order; the first match wins.
func ClassifyPlatform(link string) domain.Platform {
    l := strings.ToLower(strings.TrimSpace(link))
    if strings.HasPrefix(l, "magnet:") || hasExt(pathOf(l), "torrent") {
        return domain.PlatformTorrent
    }
    host := urlx.Host(l)
    match := func(hosts []string) bool {
        _, ok := urlx.MatchesAny(host, hosts)
        return ok
    }
    switch {
    case match(telegramHosts):
        return domain.PlatformTelegram
    case match(discordHosts):
        return domain.PlatformDiscord
    case match(redditHosts):
        return domain.PlatformReddit
    case match(codeHosts):
        return domain.PlatformCode
    case match(torrentHosts), strings.Contains(host, "torrent"):
        return domain.PlatformTorrent
    case match(cyberlockerHosts):
        return domain.PlatformCyberlocker
    case match(socialHosts):
        return domain.PlatformSocial
    case match(forumHosts), strings.HasPrefix(host, "forum."), strings.HasPrefix(host, "forums."):
        return domain.PlatformForum
    }
    p := pathOf(l)
    for _, f := range forumPaths {
        if strings.Contains(p, f) {
            return domain.PlatformForum
        }
    }
    return domain.PlatformWeb
}

// InfringementType describes how the content is being distributed.
func InfringementType(hit domain.SearchHit, platform domain.Platform, extensions []string) string {
    switch platform {
    case domain.PlatformTorrent:
        return "torrent"
    case domain.PlatformCyberlocker:
        return "file_hosting"
    case domain.PlatformTelegram, domain.PlatformDiscord:
        return "group_sharing"
    case domain.PlatformForum, domain.PlatformReddit:
        return "forum_post"
    case domain.PlatformCode:
        return "repository_leak"
    case domain.PlatformSocial:
        return "social_media"
    }
    p := pathOf(strings.ToLower(hit.Link))
    for _, ext := range extensions {
        if hasExt(p, ext) {
            return "direct_file"
        }
    }
    text := strings.ToLower(hit.Title + " " + hit.Snippet + " " + hit.Query)
    if strings.Contains(text, "download") || strings.Contains(p, "download") {
        return "download_page"
    }
    return "unauthorized_listing"
}

// Per-platform reach of a listing at a top position, and the share of that
// reach that would otherwise have bought.
var (
    audienceBase = map[domain.Platform]float64{
        domain.PlatformTelegram:    800,
        domain.PlatformDiscord:     300,
        domain.PlatformReddit:      1200,
        domain.PlatformTorrent:     500,
        domain.PlatformCyberlocker: 250,
        domain.PlatformForum:       400,
        domain.PlatformCode:        150,
        domain.PlatformSocial:      2500,
        domain.PlatformWeb:         350,
    }
    conversionRate = map[domain.Platform]float64{
        domain.PlatformTelegram:    0.04,
        domain.PlatformDiscord:     0.05,
        domain.PlatformReddit:      0.02,
        domain.PlatformTorrent:     0.06,
        domain.PlatformCyberlocker: 0.08,
        domain.PlatformForum:       0.05,
        domain.PlatformCode:        0.03,
        domain.PlatformSocial:      0.01,
        domain.PlatformWeb:         0.03,
    }
)

// EstimateAudience scales the platform base by search position and by how
// sure we are the listing is real.
func EstimateAudience(platform domain.Platform, position, confidence int) int {
    base, ok := audienceBase[platform]
    if !ok {
        base = audienceBase[domain.PlatformWeb]
    }
    factor := 0.5
    switch {
    case position >= 1 && position <= 3:
        factor = 1.5
    case position >= 4 && position <= 10:
        factor = 1.0
    }
    return int(math.Round(base * factor * float64(confidence) / 100))
}

// EstimateRevenueLoss is audience × conversion × price, in cents precision.
func EstimateRevenueLoss(platform domain.Platform, audience int, price float64) float64 {
    rate, ok := conversionRate[platform]
    if !ok {
        rate = conversionRate[domain.PlatformWeb]
    }
    if price <= 0 || audience <= 0 {
        return 0
    }
    return math.Round(float64(audience)*rate*price*100) / 100
}

func pathOf(l string) string {
    if i := strings.Index(l, "://"); i >= 0 {
        l = l[i+3:]
    }
    if i := strings.IndexAny(l, "?#"); i >= 0 {
        l = l[:i]
    }
    if i := strings.Index(l, "/"); i >= 0 {
        return l[i:]
    }
    return ""
}

func hasExt(path, ext string) bool {
    return strings.HasSuffix(strings.TrimRight(path, "/"), "."+strings.ToLower(ext))
}
