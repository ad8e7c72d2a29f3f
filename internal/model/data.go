package model

// Data holds the observed arrays ("data" mapping). All indices are 0-based
// in storage.
type Data struct {
	// Y holds detection distances, one per observation.
	Y []float64
	// NALineYear holds counts per [area, age class, site, year].
	NALineYear Array
	// SumR holds juveniles counted alongside SumAd adults per observation.
	SumR []float64
	// Survs1 and Survs2 hold [N_years_RT, 2] known-fate counts: column 0
	// individuals at risk, column 1 survivors.
	Survs1 Array
	Survs2 Array
	// RodentOcc holds rodent occupancy per [area, year].
	RodentOcc Array
}

// Constants holds dimensions' companions: index vectors, effort and fixed
// covariates ("constants" mapping). Index vectors are 1-based as in the input
// files.
type Constants struct {
	// W is the truncation distance.
	W float64
	// L holds transect length per [area, site, year].
	L Array
	// YearObs and AreaObs locate each distance observation.
	YearObs []int
	AreaObs []int
	// SumAd is the number of adults observed with each SumR record.
	SumAd []float64
	// SumRYear and SumRArea locate each recruitment record.
	SumRYear []int
	SumRArea []int
	// YearRT maps each known-fate row to a survival interval.
	YearRT []int
}

func (g *Graph) checkShapes(data Data, c Constants) error {
	d := g.dims
	if !(c.W > 0) {
		return shapeErrorf("truncation distance W must be positive, got %v", c.W)
	}
	if want := []int{d.NAreas, d.MaxSites(), d.NYears}; !c.L.SameShape(want) {
		return shapeErrorf("L has shape %v, want %v", c.L.Shape, want)
	}
	if len(data.Y) != d.NObs || len(c.YearObs) != d.NObs || len(c.AreaObs) != d.NObs {
		return shapeErrorf("distance observations: y=%d Year_obs=%d Area_obs=%d, want %d", len(data.Y), len(c.YearObs), len(c.AreaObs), d.NObs)
	}
	for i := 0; i < d.NObs; i++ {
		if err := inRange("Year_obs", i, c.YearObs[i], d.NYears); err != nil {
			return err
		}
		if err := inRange("Area_obs", i, c.AreaObs[i], d.NAreas); err != nil {
			return err
		}
		if data.Y[i] < 0 || data.Y[i] > c.W {
			return shapeErrorf("y[%d]=%v outside [0, W]", i+1, data.Y[i])
		}
	}
	if want := []int{d.NAreas, NAgeC, d.MaxSites(), d.NYears}; !data.NALineYear.SameShape(want) {
		return shapeErrorf("N_a_line_year has shape %v, want %v", data.NALineYear.Shape, want)
	}
	if len(data.SumR) != d.NSumRObs || len(c.SumAd) != d.NSumRObs || len(c.SumRYear) != d.NSumRObs || len(c.SumRArea) != d.NSumRObs {
		return shapeErrorf("recruitment observations do not all have length %d", d.NSumRObs)
	}
	for i := 0; i < d.NSumRObs; i++ {
		if err := inRange("sumR_obs_year", i, c.SumRYear[i], d.NYears); err != nil {
			return err
		}
		if err := inRange("SumR_area", i, c.SumRArea[i], d.NAreas); err != nil {
			return err
		}
	}
	if g.cfg.RodentCov {
		if want := []int{d.NAreas, d.NYears}; !data.RodentOcc.SameShape(want) {
			return shapeErrorf("RodentOcc has shape %v, want %v", data.RodentOcc.Shape, want)
		}
	}
	if g.cfg.Telemetry {
		want := []int{d.NYearsRT, 2}
		if !data.Survs1.SameShape(want) || !data.Survs2.SameShape(want) {
			return shapeErrorf("Survs1/Survs2 have shapes %v/%v, want %v", data.Survs1.Shape, data.Survs2.Shape, want)
		}
		if len(c.YearRT) != d.NYearsRT {
			return shapeErrorf("year_Survs has %d entries, want %d", len(c.YearRT), d.NYearsRT)
		}
		for i, t := range c.YearRT {
			if err := inRange("year_Survs", i, t, d.SurvYears()); err != nil {
				return err
			}
		}
	}
	return nil
}

func inRange(name string, i, v, n int) error {
	if v < 1 || v > n {
		return shapeErrorf("%s[%d]=%d outside [1, %d]", name, i+1, v, n)
	}
	return nil
}
