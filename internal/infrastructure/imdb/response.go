package imdb

import (
	"fmt"
	"strconv"

	"github.com/hszk-dev/imdb-watchlist/internal/domain/model"
)

// graphQLResponse mirrors the parts of the WatchListPage operations the addon reads.
type graphQLResponse struct {
	Data struct {
		PredefinedList *predefinedList `json:"predefinedList"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type predefinedList struct {
	TitleListItemSearch struct {
		Total    int `json:"total"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
		Edges []struct {
			ListItem *titleNode `json:"listItem"`
		} `json:"edges"`
	} `json:"titleListItemSearch"`
}

type titleNode struct {
	ID        string `json:"id"`
	TitleText struct {
		Text string `json:"text"`
	} `json:"titleText"`
	TitleType struct {
		ID              string `json:"id"`
		CanHaveEpisodes bool   `json:"canHaveEpisodes"`
	} `json:"titleType"`
	PrimaryImage *struct {
		URL string `json:"url"`
	} `json:"primaryImage"`
	ReleaseYear *struct {
		Year    int  `json:"year"`
		EndYear *int `json:"endYear"`
	} `json:"releaseYear"`
	RatingsSummary *struct {
		AggregateRating *float64 `json:"aggregateRating"`
	} `json:"ratingsSummary"`
	TitleGenres *struct {
		Genres []struct {
			Genre struct {
				Text string `json:"text"`
			} `json:"genre"`
		} `json:"genres"`
	} `json:"titleGenres"`
	Plot *struct {
		PlotText *struct {
			PlainText string `json:"plainText"`
		} `json:"plotText"`
	} `json:"plot"`
	Runtime *struct {
		Seconds int `json:"seconds"`
	} `json:"runtime"`
	PrincipalCredits []struct {
		Credits []struct {
			Name struct {
				NameText struct {
					Text string `json:"text"`
				} `json:"nameText"`
			} `json:"name"`
		} `json:"credits"`
	} `json:"principalCredits"`
}

const maxCast = 5

// toMediaItem converts a GraphQL title into Stremio meta shape.
func (n *titleNode) toMediaItem() model.MediaItem {
	item := model.MediaItem{
		ID:   n.ID,
		Type: model.MediaTypeMovie,
		Name: n.TitleText.Text,
	}
	if n.TitleType.CanHaveEpisodes {
		item.Type = model.MediaTypeSeries
	}
	if n.PrimaryImage != nil {
		item.Poster = n.PrimaryImage.URL
	}
	if y := n.ReleaseYear; y != nil && y.Year > 0 {
		switch {
		case y.EndYear != nil && *y.EndYear != y.Year:
			item.ReleaseInfo = fmt.Sprintf("%d–%d", y.Year, *y.EndYear)
		case item.Type == model.MediaTypeSeries && y.EndYear == nil:
			item.ReleaseInfo = fmt.Sprintf("%d–", y.Year)
		default:
			item.ReleaseInfo = strconv.Itoa(y.Year)
		}
	}
	if r := n.RatingsSummary; r != nil && r.AggregateRating != nil {
		item.IMDbRating = strconv.FormatFloat(*r.AggregateRating, 'f', 1, 64)
	}
	if g := n.TitleGenres; g != nil {
		for _, genre := range g.Genres {
			item.Genres = append(item.Genres, genre.Genre.Text)
		}
	}
	if p := n.Plot; p != nil && p.PlotText != nil {
		item.Description = p.PlotText.PlainText
	}
	if r := n.Runtime; r != nil && r.Seconds > 0 {
		item.Runtime = fmt.Sprintf("%d min", r.Seconds/60)
	}
	for _, group := range n.PrincipalCredits {
		for _, credit := range group.Credits {
			if len(item.Cast) == maxCast {
				break
			}
			item.Cast = append(item.Cast, credit.Name.NameText.Text)
		}
	}
	return item
}
