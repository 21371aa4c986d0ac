package profiles

import "leakhound/internal/domain"

// Built-in category profiles. Lists are ordered by how productive they have
// been; query generation takes prefixes of them.

var coursePlatforms = map[domain.Platform]float64{
    domain.PlatformTelegram:    0.9,
    domain.PlatformCyberlocker: 0.8,
    domain.PlatformTorrent:     0.7,
    domain.PlatformForum:       0.7,
    domain.PlatformDiscord:     0.6,
    domain.PlatformReddit:      0.5,
    domain.PlatformSocial:      0.4,
    domain.PlatformCode:        0.1,
}

var builtin = map[domain.Category]domain.ScanProfile{
    domain.CategoryCourse: {
        Category:        domain.CategoryCourse,
        PiracyTerms:     []string{"free download", "torrent", "mega", "google drive", "leaked", "free course", "telegram"},
        FileExtensions:  []string{"mp4", "zip", "rar", "pdf"},
        DedicatedSites:  []string{"freecourseweb.com", "freecoursesite.com", "getfreecourses.co", "courseclub.me", "tutsgalaxy.net", "freetutorials.us", "downloadly.ir", "coursedown.com", "paidcoursesforfree.com"},
        LegitimateSites: []string{"udemy.com", "coursera.org", "skillshare.com", "teachable.com", "thinkific.com", "kajabi.com", "linkedin.com", "edx.org", "gumroad.com"},
        BoostTerms:      []string{"free download", "download", "leaked", "mega", "gdrive", "torrent", "direct link", "magnet"},
        PenaltyTerms:    []string{"pricing", "review", "coupon", "enroll", "testimonial", "affiliate", "refund", "official site", "sign up"},
        PlatformWeights: coursePlatforms,
    },
    domain.CategoryEbook: {
        Category:        domain.CategoryEbook,
        PiracyTerms:     []string{"pdf free download", "epub", "free pdf", "libgen", "z-library", "mobi download"},
        FileExtensions:  []string{"pdf", "epub", "mobi", "azw3"},
        DedicatedSites:  []string{"libgen.rs", "libgen.is", "z-library.se", "pdfdrive.com", "oceanofpdf.com", "annas-archive.org", "epdf.pub", "dokumen.pub"},
        LegitimateSites: []string{"amazon.com", "goodreads.com", "barnesandnoble.com", "books.google.com", "kobo.com", "apple.com"},
        BoostTerms:      []string{"pdf", "epub", "free download", "mobi", "download", "ebook free"},
        PenaltyTerms:    []string{"buy", "hardcover", "paperback", "review", "author interview", "pricing"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformCyberlocker: 0.8,
            domain.PlatformTelegram:    0.8,
            domain.PlatformTorrent:     0.7,
            domain.PlatformReddit:      0.6,
            domain.PlatformForum:       0.5,
            domain.PlatformDiscord:     0.3,
            domain.PlatformSocial:      0.3,
            domain.PlatformCode:        0.1,
        },
    },
    domain.CategorySoftware: {
        Category:        domain.CategorySoftware,
        PiracyTerms:     []string{"crack", "keygen", "serial key", "nulled", "full version free", "license key", "activator", "free download"},
        FileExtensions:  []string{"exe", "dmg", "zip", "apk", "msi", "iso"},
        DedicatedSites:  []string{"getintopc.com", "filecr.com", "igetintopc.com", "crackingpatching.com", "4download.net", "haxnode.net", "softpedia-crack.com"},
        LegitimateSites: []string{"g2.com", "capterra.com", "producthunt.com", "alternativeto.net", "apps.apple.com", "play.google.com", "microsoft.com"},
        BoostTerms:      []string{"crack", "keygen", "cracked", "patch", "serial", "activator", "portable", "nulled"},
        PenaltyTerms:    []string{"pricing", "free trial", "review", "changelog", "documentation", "official download", "support"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformTorrent:     0.9,
            domain.PlatformCode:        0.9,
            domain.PlatformForum:       0.8,
            domain.PlatformCyberlocker: 0.7,
            domain.PlatformTelegram:    0.6,
            domain.PlatformDiscord:     0.5,
            domain.PlatformReddit:      0.5,
            domain.PlatformSocial:      0.3,
        },
    },
    domain.CategoryTemplate: {
        Category:        domain.CategoryTemplate,
        PiracyTerms:     []string{"nulled", "gpl", "free download", "cracked", "leaked", "null"},
        FileExtensions:  []string{"zip", "psd", "fig", "sketch"},
        DedicatedSites:  []string{"gpldl.com", "festingervault.com", "wplocker.com", "themelock.com", "null-24.net", "babiato.co", "codelist.cc"},
        LegitimateSites: []string{"themeforest.net", "envato.com", "wordpress.org", "codecanyon.net", "creativemarket.com", "templatemonster.com"},
        BoostTerms:      []string{"nulled", "gpl", "free download", "cracked", "latest version free"},
        PenaltyTerms:    []string{"demo", "documentation", "pricing", "review", "support forum", "changelog"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformForum:       0.8,
            domain.PlatformCode:        0.7,
            domain.PlatformCyberlocker: 0.6,
            domain.PlatformTelegram:    0.5,
            domain.PlatformTorrent:     0.3,
            domain.PlatformDiscord:     0.3,
            domain.PlatformReddit:      0.3,
            domain.PlatformSocial:      0.2,
        },
    },
    domain.CategoryAudio: {
        Category:        domain.CategoryAudio,
        PiracyTerms:     []string{"free download", "torrent", "crack", "r2r", "leaked", "mega"},
        FileExtensions:  []string{"wav", "mp3", "flac", "aiff", "zip"},
        DedicatedSites:  []string{"audioz.download", "freshstuff4you.com", "plugintorrent.com", "vstbase.org", "magesy.blog", "audiostorrent.com"},
        LegitimateSites: []string{"splice.com", "spotify.com", "bandcamp.com", "soundcloud.com", "loopmasters.com", "native-instruments.com"},
        BoostTerms:      []string{"free download", "torrent", "r2r", "crack", "wav", "leaked"},
        PenaltyTerms:    []string{"demo", "preview", "pricing", "review", "official", "stream on"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformTorrent:     0.8,
            domain.PlatformCyberlocker: 0.8,
            domain.PlatformTelegram:    0.6,
            domain.PlatformForum:       0.6,
            domain.PlatformReddit:      0.5,
            domain.PlatformDiscord:     0.5,
            domain.PlatformSocial:      0.5,
        },
    },
    domain.CategoryVideo: {
        Category:        domain.CategoryVideo,
        PiracyTerms:     []string{"watch free", "full movie", "download", "torrent", "stream free", "1080p", "leaked"},
        FileExtensions:  []string{"mp4", "mkv", "avi", "mov"},
        DedicatedSites:  []string{"1337x.to", "yts.mx", "fmovies.to", "123movies.net", "putlocker.vip", "soap2day.to"},
        LegitimateSites: []string{"netflix.com", "vimeo.com", "primevideo.com", "hulu.com", "imdb.com"},
        BoostTerms:      []string{"watch free", "full", "1080p", "720p", "torrent", "download", "stream"},
        PenaltyTerms:    []string{"trailer", "review", "cast", "interview", "pricing", "behind the scenes"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformTorrent:     0.9,
            domain.PlatformTelegram:    0.8,
            domain.PlatformCyberlocker: 0.8,
            domain.PlatformSocial:      0.6,
            domain.PlatformReddit:      0.5,
            domain.PlatformForum:       0.5,
            domain.PlatformDiscord:     0.4,
        },
    },
    domain.CategoryFont: {
        Category:        domain.CategoryFont,
        PiracyTerms:     []string{"free download", "font free", "otf download", "ttf", "cracked"},
        FileExtensions:  []string{"otf", "ttf", "woff", "woff2", "zip"},
        DedicatedSites:  []string{"fontsfree.net", "freefontsfamily.com", "fontsgeek.com", "befonts.com", "freefontsvault.com"},
        LegitimateSites: []string{"myfonts.com", "fonts.adobe.com", "fonts.google.com", "creativemarket.com", "fontshop.com"},
        BoostTerms:      []string{"free download", "otf", "ttf", "font family free", "download"},
        PenaltyTerms:    []string{"license", "pricing", "specimen", "foundry", "buy"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformCode:        0.6,
            domain.PlatformForum:       0.6,
            domain.PlatformCyberlocker: 0.6,
            domain.PlatformTelegram:    0.3,
            domain.PlatformTorrent:     0.3,
            domain.PlatformReddit:      0.3,
            domain.PlatformDiscord:     0.2,
            domain.PlatformSocial:      0.2,
        },
    },
    domain.CategoryGame: {
        Category:        domain.CategoryGame,
        PiracyTerms:     []string{"free download", "repack", "crack", "torrent", "skidrow", "full game free"},
        FileExtensions:  []string{"iso", "zip", "rar", "exe"},
        DedicatedSites:  []string{"fitgirl-repacks.site", "skidrowreloaded.com", "steamunlocked.net", "igg-games.com", "oceanofgames.com", "dodi-repacks.site"},
        LegitimateSites: []string{"store.steampowered.com", "epicgames.com", "gog.com", "itch.io", "humblebundle.com"},
        BoostTerms:      []string{"repack", "crack", "torrent", "free download", "codex", "full game"},
        PenaltyTerms:    []string{"review", "walkthrough", "trailer", "pricing", "patch notes", "wiki"},
        PlatformWeights: map[domain.Platform]float64{
            domain.PlatformTorrent:     0.9,
            domain.PlatformCyberlocker: 0.8,
            domain.PlatformForum:       0.7,
            domain.PlatformTelegram:    0.6,
            domain.PlatformReddit:      0.5,
            domain.PlatformDiscord:     0.5,
            domain.PlatformSocial:      0.4,
            domain.PlatformCode:        0.2,
        },
    },
}

var fallbackProfile = domain.ScanProfile{
    Category:        "default",
    PiracyTerms:     []string{"free download", "torrent", "leaked", "crack", "mega"},
    FileExtensions:  []string{"zip", "rar", "pdf"},
    DedicatedSites:  []string{},
    LegitimateSites: []string{"amazon.com", "ebay.com", "etsy.com", "gumroad.com"},
    BoostTerms:      []string{"free download", "download", "leaked", "torrent", "crack"},
    PenaltyTerms:    []string{"pricing", "review", "coupon", "official", "buy now"},
    PlatformWeights: map[domain.Platform]float64{
        domain.PlatformTorrent:     0.6,
        domain.PlatformCyberlocker: 0.6,
        domain.PlatformTelegram:    0.6,
        domain.PlatformForum:       0.5,
        domain.PlatformReddit:      0.4,
        domain.PlatformDiscord:     0.4,
        domain.PlatformSocial:      0.3,
        domain.PlatformCode:        0.2,
    },
}

// platformSites are the hosts a Tier 2 query scopes to for each platform.
var platformSites = map[domain.Platform][]string{
    domain.PlatformTelegram:    {"t.me", "telegram.me"},
    domain.PlatformDiscord:     {"discord.gg", "disboard.org"},
    domain.PlatformReddit:      {"reddit.com"},
    domain.PlatformTorrent:     {"1337x.to", "thepiratebay.org", "nyaa.si", "torrentgalaxy.to", "rarbg.to", "limetorrents.lol"},
    domain.PlatformCyberlocker: {"mega.nz", "mediafire.com", "drive.google.com", "terabox.com", "rapidgator.net", "zippyshare.com", "4shared.com"},
    domain.PlatformForum:       {"blackhatworld.com", "nulled.to", "cracked.io", "warriorforum.com"},
    domain.PlatformCode:        {"github.com", "gitlab.com", "bitbucket.org"},
    domain.PlatformSocial:      {"youtube.com", "facebook.com", "tiktok.com"},
}

// deadSites are known-defunct hosts skipped by every site-list consumer.
var deadSites = []string{
    "zippyshare.com",
    "rarbg.to",
    "uploaded.net",
    "freetutorials.us",
    "kickass.to",
}
